package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/aspect-build/enclaveproof/internal/client"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	AdminToken  string
	DBPath      string
	ListenAddr  string
	CORSOrigins []string
	// PublicVerify serves POST /v1/verify without the admin token.
	PublicVerify bool
	Client       *client.Config
}

// LoadConfig loads server configuration from environment variables.
func LoadConfig() (*Config, error) {
	adminToken := os.Getenv("ENCLAVEPROOF_ADMIN_TOKEN")
	if adminToken == "" {
		return nil, fmt.Errorf("ENCLAVEPROOF_ADMIN_TOKEN is required")
	}
	if len(adminToken) < 16 {
		return nil, fmt.Errorf("ENCLAVEPROOF_ADMIN_TOKEN must be at least 16 characters")
	}

	dbPath := os.Getenv("ENCLAVEPROOF_DB_PATH")
	if dbPath == "" {
		dbPath = "enclaveproof.db"
	}

	listenAddr := os.Getenv("ENCLAVEPROOF_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	var corsOrigins []string
	if v := os.Getenv("ENCLAVEPROOF_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	publicVerify := false
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("ENCLAVEPROOF_PUBLIC_VERIFY"))); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			publicVerify = true
		case "0", "false", "no", "off":
			publicVerify = false
		default:
			return nil, fmt.Errorf("ENCLAVEPROOF_PUBLIC_VERIFY must be one of true/false/1/0/yes/no/on/off")
		}
	}

	clientCfg, err := client.LoadConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		AdminToken:   adminToken,
		DBPath:       dbPath,
		ListenAddr:   listenAddr,
		CORSOrigins:  corsOrigins,
		PublicVerify: publicVerify,
		Client:       clientCfg,
	}, nil
}
