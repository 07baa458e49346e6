package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ngajidev/keygate/internal/app"
	"github.com/ngajidev/keygate/internal/config"
	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/store"
)

// newLogger builds the process logger from log.* settings, writing to the
// command's stderr.
func newLogger(cmd *cobra.Command, s *config.Settings, dev bool) (*slog.Logger, error) {
	return config.NewLogger(s.Log, cmd.ErrOrStderr(), dev)
}

// openApp loads settings and wires the components role needs.
func (e *env) openApp(cmd *cobra.Command, role app.Role, dev bool) (*app.App, *slog.Logger, error) {
	s, err := e.settings()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, s, dev)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cmd.Context(), s, role, app.Options{Dev: dev}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize %s: %w", roleName(role), err)
	}
	return a, logger, nil
}

func roleName(r app.Role) string {
	switch r {
	case app.RoleAuth:
		return "auth service"
	case app.RoleData:
		return "data service"
	}
	return "store"
}

// lookupUser resolves a --user value, which may be a username or a
// numeric id.
func lookupUser(ctx context.Context, st *store.Store, ref string) (*model.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("--user is required")
	}
	u, err := st.GetUserByUsername(ctx, ref)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		if u, err := st.GetUser(ctx, id); err == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %q not found", ref)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
