// seed inserts development sample data for local testing.
// Idempotent: skips inserts when the dev org already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/config"
	"workspace-backbone/backend/internal/db"
	membershipdomain "workspace-backbone/backend/internal/membership/domain"
	membershiprepo "workspace-backbone/backend/internal/membership/repository"
	messagingdomain "workspace-backbone/backend/internal/messaging/domain"
	messagingrepo "workspace-backbone/backend/internal/messaging/repository"
	orgdomain "workspace-backbone/backend/internal/organization/domain"
	orgrepo "workspace-backbone/backend/internal/organization/repository"
	"workspace-backbone/backend/internal/security"
	userdomain "workspace-backbone/backend/internal/user/domain"
	userrepo "workspace-backbone/backend/internal/user/repository"
)

const (
	devOrgSlug   = "dev"
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	orgs := orgrepo.NewPostgresRepository(pool)
	existing, err := orgs.GetBySlug(ctx, devOrgSlug)
	if err != nil {
		log.Fatalf("check dev org: %v", err)
	}
	if existing != nil {
		log.Printf("dev org %q already seeded, nothing to do", devOrgSlug)
		return
	}

	now := time.Now()
	org := &orgdomain.Organization{
		ID:        uuid.NewString(),
		Name:      "Dev Workspace",
		Slug:      devOrgSlug,
		CreatedAt: now,
	}
	if err := orgs.Create(ctx, org); err != nil {
		log.Fatalf("seed org: %v", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash dev password: %v", err)
	}

	users := userrepo.NewPostgresRepository(pool)
	memberships := membershiprepo.NewPostgresRepository(pool)

	owner := &userdomain.User{
		ID:           uuid.NewString(),
		OrgID:        org.ID,
		Email:        devUserEmail,
		DisplayName:  "Dev Owner",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	member := &userdomain.User{
		ID:           uuid.NewString(),
		OrgID:        org.ID,
		Email:        "member@example.com",
		DisplayName:  "Dev Member",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, u := range []*userdomain.User{owner, member} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed user %s: %v", u.Email, err)
		}
	}
	roles := map[string]string{owner.ID: membershipdomain.RoleOwner, member.ID: membershipdomain.RoleMember}
	for userID, role := range roles {
		if err := memberships.Create(ctx, &membershipdomain.Membership{
			ID:        uuid.NewString(),
			OrgID:     org.ID,
			UserID:    userID,
			Role:      role,
			CreatedAt: now,
		}); err != nil {
			log.Fatalf("seed membership: %v", err)
		}
	}

	conversations := messagingrepo.NewPostgresConversations(pool)
	conv := &messagingdomain.Conversation{
		ID:        uuid.NewString(),
		OrgID:     org.ID,
		Title:     "general",
		CreatedBy: owner.ID,
		CreatedAt: now,
	}
	if err := conversations.Create(ctx, conv); err != nil {
		log.Fatalf("seed conversation: %v", err)
	}
	for _, userID := range []string{owner.ID, member.ID} {
		if err := conversations.AddMember(ctx, &messagingdomain.Member{
			ID:             uuid.NewString(),
			OrgID:          org.ID,
			ConversationID: conv.ID,
			UserID:         userID,
			JoinedAt:       now,
		}); err != nil {
			log.Fatalf("seed conversation member: %v", err)
		}
	}

	log.Printf("seeded dev org %s with users %s / %s (password %q)",
		org.ID, owner.Email, member.Email, devPassword)
}
