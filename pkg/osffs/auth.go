package osffs

import (
	"context"
	"os"

	"github.com/osffs/osffs/internal/config"
	"github.com/osffs/osffs/pkg/errors"
)

// ResolveToken applies the credential precedence: an explicit parameter
// wins over the configuration file, which wins over the environment.
func ResolveToken(explicit string, cfg *config.Config) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.Token != "" {
		return cfg.Token
	}
	return os.Getenv("OSF_TOKEN")
}

// ValidateToken probes the authenticated-user endpoint to check that the
// session credential works. It returns nil on success, an
// AUTHENTICATION_FAILED error for a rejected credential, and other
// classified errors for unrelated failures.
func (fs *FileSystem) ValidateToken(ctx context.Context) error {
	if err := fs.client.GetJSON(ctx, "users/me/", nil); err != nil {
		if errors.CodeOf(err) == errors.ErrCodeAuthenticationFailed {
			return errors.New(errors.ErrCodeAuthenticationFailed, "token rejected").WithOp("validate")
		}
		return err
	}
	return nil
}
