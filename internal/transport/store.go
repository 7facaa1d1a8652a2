package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/storage"
)

// LocalScheme selects the Store transport in a Router.
const LocalScheme = "local://"

// Store writes uploaded files into server storage. A file that cannot be
// stored is reported as rejected; the request only fails when ctx ends.
type Store struct {
	store storage.Store
}

// NewStore creates a transport backed by store.
func NewStore(store storage.Store) *Store {
	return &Store{store: store}
}

func (s *Store) Upload(ctx context.Context, req *admission.Request) (*admission.Response, error) {
	logger := log.WithContext(ctx, log.WithComponent("transport"))
	resp := &admission.Response{}

	for i, r := range req.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.save(req.SessionID, r); err != nil {
			logger.Warn().Err(err).Str("file_id", r.ID()).Msg("storing file failed")
			resp.Rejected = append(resp.Rejected, r)
		} else {
			resp.Files = append(resp.Files, r)
		}
		req.Progress(float64(i+1) / float64(len(req.Files)) * 100)
	}
	return resp, nil
}

func (s *Store) save(sessionID string, r *admission.FileRecord) error {
	src, err := r.Handle().Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", r.Name(), err)
	}
	defer src.Close()

	_, err = s.store.Save(storage.Meta{
		Name:        r.Name(),
		ContentType: r.ContentType(),
		SessionID:   sessionID,
		RecordID:    r.ID(),
	}, src)
	return err
}

// Router picks the Store transport for local:// URLs and the HTTP transport
// for everything else.
type Router struct {
	Local  admission.Transport
	Remote admission.Transport
}

func (rt *Router) Upload(ctx context.Context, req *admission.Request) (*admission.Response, error) {
	if strings.HasPrefix(req.URL, LocalScheme) {
		if rt.Local == nil {
			return nil, fmt.Errorf("no local transport for %s", req.URL)
		}
		return rt.Local.Upload(ctx, req)
	}
	if rt.Remote == nil {
		return nil, fmt.Errorf("no remote transport for %s", req.URL)
	}
	return rt.Remote.Upload(ctx, req)
}
