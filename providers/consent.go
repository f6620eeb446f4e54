package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

// Consent handles the resource owner's decision posted back from the consent
// page. The echoed authorization parameters are validated against the client
// registration again before anything is issued.
type Consent struct {
	deps Deps
}

// NewConsent constructs the consent provider.
func NewConsent(deps Deps) *Consent {
	return &Consent{deps: deps}
}

// Supports implements authn.Provider.
func (p *Consent) Supports(req authn.Request) bool {
	_, ok := req.(*authn.ConsentRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *Consent) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	cr := req.(*authn.ConsentRequest)

	client, err := p.deps.Store.GetClient(ctx, cr.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, oauth2.InvalidParameter(oauth2.ParamClientID, oauth2.ErrorURIAuthzRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	redirectURI, oerr := resolveRedirectURI(client, cr.RedirectURI)
	if oerr != nil {
		return nil, oerr
	}

	if !cr.Approved {
		p.deps.logger().InfoContext(ctx, "authz.consent.denied",
			slog.String("client_id", client.ID),
			slog.String("sub", cr.Subject))
		return &authn.DeniedResult{RedirectURI: redirectURI, State: cr.State}, nil
	}

	if len(cr.ApprovedScopes) == 0 {
		return nil, &authn.RedirectError{
			Err: oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidScope,
				"OAuth 2.0 parameter: "+oauth2.ParamScope, oauth2.ErrorURIAuthzRequest),
			RedirectURI: redirectURI,
			State:       cr.State,
		}
	}
	if !oauth2.ScopesContainAll(client.Scopes, cr.ApprovedScopes) {
		return nil, &authn.RedirectError{
			Err: oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidScope,
				"OAuth 2.0 parameter: "+oauth2.ParamScope, oauth2.ErrorURIAuthzRequest),
			RedirectURI: redirectURI,
			State:       cr.State,
		}
	}
	if oerr := validateChallenge(client, cr.CodeChallenge, cr.CodeChallengeMethod); oerr != nil {
		return nil, &authn.RedirectError{Err: oerr, RedirectURI: redirectURI, State: cr.State}
	}

	// Merge with any previously granted scopes so a later request for an
	// already-approved subset skips the consent page.
	granted := cr.ApprovedScopes
	if prior, err := p.deps.Store.GetConsent(ctx, client.ID, cr.Subject); err == nil {
		granted = mergeScopes(prior.Scopes, cr.ApprovedScopes)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load consent: %w", err)
	}
	if err := p.deps.Store.PutConsent(ctx, &storage.Consent{
		ClientID:  client.ID,
		Subject:   cr.Subject,
		Scopes:    granted,
		GrantedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to persist consent: %w", err)
	}
	p.deps.logger().InfoContext(ctx, "authz.consent.granted",
		slog.String("client_id", client.ID),
		slog.String("sub", cr.Subject),
		slog.String("scope", oauth2.JoinScopes(cr.ApprovedScopes)))

	code, err := p.deps.Issuer.AuthorizationCode(client.ID, cr.Subject, redirectURI,
		cr.Nonce, cr.CodeChallenge, cr.CodeChallengeMethod, cr.ApprovedScopes)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.PutCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to persist authorization code: %w", err)
	}
	return &authn.CodeResult{RedirectURI: redirectURI, Code: code.Code, State: cr.State}, nil
}

func mergeScopes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
