package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credentia/certify-api/internal/models"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

// ResolutionConfidence tags how a recipient identity was established.
type ResolutionConfidence string

const (
	ResolutionConfident   ResolutionConfidence = "CONFIDENT"
	ResolutionNameMatch   ResolutionConfidence = "NAME_MATCH"
	ResolutionPlaceholder ResolutionConfidence = "PLACEHOLDER"
)

// PlaceholderEmail is the sentinel recipient email for certificates
// issued without a confirmed identity.
const PlaceholderEmail = "unknown@example.com"

// PlaceholderIDPrefix marks generated recipient ids awaiting claim.
const PlaceholderIDPrefix = "pending-claim-"

// RecipientIdentity is a durable recipient reference.
type RecipientIdentity struct {
	ID       string
	Email    string
	FullName string
}

// Resolution is the resolver outcome: an identity plus how much to
// trust it and which chain step produced it.
type Resolution struct {
	Identity      RecipientIdentity
	Confidence    ResolutionConfidence
	Step          string
	NeedsClaiming bool
}

type resolverUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByFullName(ctx context.Context, fullName string) ([]models.User, error)
}

type resolverDocumentStore interface {
	FindByID(ctx context.Context, id string) (*models.Document, error)
}

// IdentityResolver determines the recipient identity for a template via
// an ordered fallback chain. A missing document, uploader, or email is
// expected and falls through to the next step; only backend faults
// surface as errors.
type IdentityResolver struct {
	users     resolverUserStore
	documents resolverDocumentStore
	logger    *zap.Logger
}

// NewIdentityResolver constructs the resolver.
func NewIdentityResolver(users resolverUserStore, documents resolverDocumentStore, logger *zap.Logger) *IdentityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityResolver{users: users, documents: documents, logger: logger}
}

type resolutionStrategy struct {
	name string
	run  func(ctx context.Context, tpl *models.Template) (*Resolution, error)
}

// Resolve walks the fallback chain and always returns a usable
// resolution; the placeholder step cannot fail.
func (r *IdentityResolver) Resolve(ctx context.Context, tpl *models.Template) (*Resolution, error) {
	strategies := []resolutionStrategy{
		{name: "document_uploader", run: r.resolveViaDocument},
		{name: "name_match", run: r.resolveViaNameMatch},
	}

	for _, strategy := range strategies {
		resolution, err := strategy.run(ctx, tpl)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "identity lookup failed")
		}
		if resolution != nil {
			if resolution.Confidence != ResolutionConfident {
				r.logger.Info("recipient resolved via fallback",
					zap.String("template_id", tpl.ID),
					zap.String("step", resolution.Step))
			}
			return resolution, nil
		}
	}

	resolution := r.placeholder(tpl)
	r.logger.Warn("no confident recipient identity, issuing placeholder",
		zap.String("template_id", tpl.ID),
		zap.String("recipient_name", tpl.RecipientName))
	return resolution, nil
}

// resolveViaDocument follows template → document → uploader. Any broken
// link in that chain yields nil so the next strategy runs.
func (r *IdentityResolver) resolveViaDocument(ctx context.Context, tpl *models.Template) (*Resolution, error) {
	if tpl.DocumentID == nil || *tpl.DocumentID == "" {
		return nil, nil
	}
	doc, err := r.documents.FindByID(ctx, *tpl.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if doc.UploadedBy == "" {
		return nil, nil
	}
	user, err := r.users.FindByID(ctx, doc.UploadedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(user.Email) == "" {
		return nil, nil
	}
	return &Resolution{
		Identity:   RecipientIdentity{ID: user.ID, Email: user.Email, FullName: user.FullName},
		Confidence: ResolutionConfident,
		Step:       "document_uploader",
	}, nil
}

// resolveViaNameMatch trusts an exact display-name match only when it is
// unambiguous and carries an email.
func (r *IdentityResolver) resolveViaNameMatch(ctx context.Context, tpl *models.Template) (*Resolution, error) {
	name := strings.TrimSpace(tpl.RecipientName)
	if name == "" {
		return nil, nil
	}
	matches, err := r.users.FindByFullName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, nil
	}
	if strings.TrimSpace(matches[0].Email) == "" {
		return nil, nil
	}
	return &Resolution{
		Identity:   RecipientIdentity{ID: matches[0].ID, Email: matches[0].Email, FullName: matches[0].FullName},
		Confidence: ResolutionNameMatch,
		Step:       "name_match",
	}, nil
}

func (r *IdentityResolver) placeholder(tpl *models.Template) *Resolution {
	return &Resolution{
		Identity: RecipientIdentity{
			ID:       PlaceholderIDPrefix + uuid.NewString(),
			Email:    PlaceholderEmail,
			FullName: tpl.RecipientName,
		},
		Confidence:    ResolutionPlaceholder,
		Step:          "placeholder",
		NeedsClaiming: true,
	}
}
