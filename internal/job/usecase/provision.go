package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"

	authrepo "mailstream-backend/internal/auth/repository"
	ingestdomain "mailstream-backend/internal/ingest/domain"
	"mailstream-backend/pkg/gmail"
)

// KindWorkspaceTemplate installs the standard label set into the
// user's mailbox. Idempotent: labels that already exist are left alone.
const KindWorkspaceTemplate = "workspace_template"

// workspaceLabels is the template applied to every mailbox. Order is
// stable so progress reporting is deterministic.
var workspaceLabels = []string{
	"Workspace",
	"Workspace/Follow-up",
	"Workspace/Receipts",
	"Workspace/Newsletters",
	"Workspace/Archive",
}

// WorkspaceTemplateInstaller provisions mailbox labels as a tracked job.
type WorkspaceTemplateInstaller struct {
	userRepo authrepo.UserRepository
	gmailSvc *gmail.Service
}

func NewWorkspaceTemplateInstaller(userRepo authrepo.UserRepository, gmailSvc *gmail.Service) *WorkspaceTemplateInstaller {
	return &WorkspaceTemplateInstaller{
		userRepo: userRepo,
		gmailSvc: gmailSvc,
	}
}

// Run implements the workspace_template job.
func (w *WorkspaceTemplateInstaller) Run(ctx context.Context, userID string, params map[string]interface{}, report func(progress int)) (map[string]interface{}, error) {
	user, err := w.userRepo.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !user.HasCredentials() {
		return nil, fmt.Errorf("mail provider not connected")
	}

	creds := ingestdomain.Credentials{
		UserID:       user.ID,
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
	}
	existing, err := w.gmailSvc.ListLabels(ctx, creds, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[strings.ToLower(l.Name)] = true
	}

	created := 0
	skipped := 0
	for i, name := range workspaceLabels {
		if have[strings.ToLower(name)] {
			skipped++
		} else {
			if _, err := w.gmailSvc.CreateLabel(ctx, creds, name, nil); err != nil {
				return nil, fmt.Errorf("failed to create label %q: %w", name, err)
			}
			created++
		}
		report((i + 1) * 100 / len(workspaceLabels))
	}

	log.Printf("[WorkspaceTemplate] Installed for user %s: %d created, %d already present", userID, created, skipped)

	return map[string]interface{}{
		"labels_created":  created,
		"labels_existing": skipped,
		"labels_total":    len(workspaceLabels),
	}, nil
}
