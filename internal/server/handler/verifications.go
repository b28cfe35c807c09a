package handler

import (
	"net/http"
	"strconv"

	"github.com/aspect-build/enclaveproof/internal/refparser"
	"github.com/aspect-build/enclaveproof/internal/store"
	"github.com/gin-gonic/gin"
)

// HandleListVerifications handles GET /v1/verifications.
func HandleListVerifications(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := store.ListFilter{
			Enclave: c.Query("enclave"),
			Repo:    c.Query("repo"),
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			f.Limit = n
		}

		list, err := st.ListVerifications(f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if list == nil {
			list = []store.Verification{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// HandleGroundTruth handles GET /v1/ground-truth.
func HandleGroundTruth(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		enclave, repo := c.Query("enclave"), c.Query("repo")
		if enclave == "" || repo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "enclave and repo are required"})
			return
		}

		ref, err := refparser.Parse(repo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		v, err := st.LatestTrusted(enclave, ref.String())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if v == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no trusted verification recorded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ground_truth": v.GroundTruth(),
			"digest":       v.Digest,
			"verified_at":  v.CreatedAt,
			"id":           v.ID,
		})
	}
}
