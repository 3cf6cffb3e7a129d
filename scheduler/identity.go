package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/internal/httpclient"
)

// IdentityResolver maps an external trigger identity (the id presented by
// the admin surface's auth layer) to an internal user id. Resolution failure
// never blocks a job run: the dispatcher logs a warning and proceeds with no
// resolved user.
type IdentityResolver interface {
	Resolve(ctx context.Context, externalID string) (string, error)
}

// NopIdentityResolver always fails resolution. Used when no identity
// collaborator is configured; executions then record no triggered-by user.
type NopIdentityResolver struct{}

func (NopIdentityResolver) Resolve(ctx context.Context, externalID string) (string, error) {
	return "", errors.New("identity resolution not configured")
}

// HTTPIdentityResolver resolves identities by calling the identity
// collaborator over the service directory.
type HTTPIdentityResolver struct {
	directory *ServiceDirectory
	client    *httpclient.Client
	service   string
	endpoint  string
}

// NewHTTPIdentityResolver creates a resolver for the given identity
// collaborator service and endpoint
func NewHTTPIdentityResolver(directory *ServiceDirectory, client *httpclient.Client, service, endpoint string) *HTTPIdentityResolver {
	return &HTTPIdentityResolver{
		directory: directory,
		client:    client,
		service:   service,
		endpoint:  endpoint,
	}
}

type identityResolveRequest struct {
	ExternalID string `json:"externalId"`
}

type identityResolveResponse struct {
	UserID string `json:"userId"`
}

// Resolve POSTs the external id to the identity collaborator and returns
// the internal user id
func (r *HTTPIdentityResolver) Resolve(ctx context.Context, externalID string) (string, error) {
	targetURL, err := r.directory.Resolve(r.service, r.endpoint)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(identityResolveRequest{ExternalID: externalID})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal identity request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build identity request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "identity request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Newf("identity service returned %s", resp.Status)
	}

	var parsed identityResolveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "failed to decode identity response")
	}
	if parsed.UserID == "" {
		return "", errors.Newf("identity service returned no user id for %q", externalID)
	}

	return parsed.UserID, nil
}
