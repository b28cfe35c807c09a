package handler

import (
	"net/http"

	"github.com/aspect-build/enclaveproof/internal/client"
	"github.com/aspect-build/enclaveproof/internal/engine"
	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/refparser"
	"github.com/aspect-build/enclaveproof/internal/store"
	"github.com/aspect-build/enclaveproof/internal/trust"
	"github.com/gin-gonic/gin"
)

type verifyRequest struct {
	Enclave string `json:"enclave" binding:"required"`
	Repo    string `json:"repo" binding:"required"`
}

// HandleVerify handles POST /v1/verify. Every attempt past request
// validation is recorded, trusted or not.
func HandleVerify(st *store.Store, eng *engine.Engine, resolver client.DigestResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ref, err := refparser.Parse(req.Repo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cl := client.New(req.Enclave, ref.String(), eng, client.WithResolver(resolver))
		a := cl.Attempt(c.Request.Context())

		rec := store.NewVerification(a.Enclave, a.Repo, a.Digest, a.GroundTruth, a.Err, a.Duration)
		if err := st.RecordVerification(rec); err != nil {
			logx.Warnf("record verification enclave=%s repo=%s: %v", a.Enclave, a.Repo, err)
		}

		if a.Err != nil {
			kind := trust.KindOf(a.Err)
			c.JSON(statusFor(kind), gin.H{"error": a.Err.Error(), "kind": string(kind)})
			return
		}
		c.JSON(http.StatusOK, a.GroundTruth)
	}
}
