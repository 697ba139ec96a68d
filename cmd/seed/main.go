package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"approvalflow/backend/internal/config"
	"approvalflow/backend/internal/logging"
	"approvalflow/backend/internal/repository"
	"approvalflow/backend/internal/templates"
	"approvalflow/backend/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	store := repository.NewPostgresStore(pool)

	// 1. Seed Users
	seedUsers := []struct {
		Username string
		FullName string
		Role     models.Role
	}{
		{"mwillis", "Morgan Willis", "editor"},
		{"dcheng", "Dana Cheng", "legal"},
		{"rsalazar", "Rae Salazar", "legal"},
		{"tokafor", "Tunde Okafor", "comms"},
	}

	userIDs := make(map[string]string)
	for _, su := range seedUsers {
		u := &models.User{
			ID:        uuid.New().String(),
			Username:  su.Username,
			Email:     su.Username + "@example.org",
			FullName:  su.FullName,
			Role:      su.Role,
			Status:    models.UserStatusActive,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.CreateUser(ctx, u); err != nil {
			log.Printf("Failed to create user %s: %v", su.Username, err)
			continue
		}
		userIDs[su.Username] = u.ID
		logger.Info("Seeded user", "username", u.Username, "role", string(u.Role))
	}

	admin := userIDs["mwillis"]

	// 2. Permission Grants
	grants := []struct {
		User       string
		Permission string
		Resource   string
	}{
		{"mwillis", "create", "workflow_template"},
		{"mwillis", "start", "workflow_instance"},
		{"mwillis", "assign", "workflow_instance"},
		{"mwillis", "advance", "workflow_instance"},
		{"mwillis", "grant", "permission"},
		{"tokafor", "start", "workflow_instance"},
	}
	for _, g := range grants {
		grant := &models.PermissionGrant{
			ID:             uuid.New().String(),
			UserID:         userIDs[g.User],
			PermissionType: g.Permission,
			ResourceType:   g.Resource,
			GrantedBy:      admin,
			GrantedAt:      time.Now().UTC(),
		}
		if err := store.GrantPermission(ctx, grant); err != nil {
			log.Printf("Failed to grant %s/%s to %s: %v", g.Permission, g.Resource, g.User, err)
		}
	}
	logger.Info("Seeded permission grants", "count", len(grants))

	// 3. Check for existing templates to prevent duplicates
	existing, err := store.ListTemplates(ctx, "press_release")
	if err != nil {
		log.Fatalf("Failed to list existing templates: %v", err)
	}
	for _, t := range existing {
		if t.Name == "Press Release Review" {
			logger.Info("Skipping existing template", "name", t.Name)
			return
		}
	}

	// 4. Create Seed Template
	templateService := templates.NewService(store, logger)

	editorRole := models.Role("editor")
	legalRole := models.Role("legal")
	two := 2

	tmpl, err := templateService.CreateTemplate(ctx, models.CreateTemplateRequest{
		Name:        "Press Release Review",
		Description: "Editorial pass followed by a two-person legal sign-off.",
		ContentType: "press_release",
		Stages: []models.StageSpec{
			{
				StageName:    "Editorial Review",
				StageType:    "review",
				RequiredRole: &editorRole,
			},
			{
				StageName:      "Legal Sign-off",
				StageType:      "legal",
				RequiredRole:   &legalRole,
				ParallelReview: true,
				MinApprovals:   &two,
			},
		},
	}, admin)
	if err != nil {
		log.Fatalf("Failed to create template: %v", err)
	}

	logger.Info("Seeded template", "name", tmpl.Name, "id", tmpl.ID)
	logger.Info("Seeding complete!")
}
