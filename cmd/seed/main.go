// seed inserts development sample data for local testing: go run ./cmd/seed.
// Idempotent: exits quietly when the dev project manager (pm@example.com) already exists.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"project-tracker/backend/internal/app"
	"project-tracker/backend/internal/config"
	"project-tracker/backend/internal/db"
	"project-tracker/backend/internal/logger"
	"project-tracker/backend/internal/membership/domain"
	"project-tracker/backend/internal/membership/repository"
	membershipservice "project-tracker/backend/internal/membership/service"
	projectdomain "project-tracker/backend/internal/project/domain"
	taskdomain "project-tracker/backend/internal/task/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	lg := logger.New("seed", level)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := repository.NewPostgresRepository(conn)
	core, err := app.New(ctx, cfg, app.Resources{DB: conn, Repo: repo, Logger: lg})
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer core.Close()
	lc := core.Lifecycle

	pm, team, err := lc.CreateUser(ctx, membershipservice.NewUser{
		Email: "pm@example.com", Username: "pm", Name: "Dev PM", IsProjectManager: true,
	})
	if errors.Is(err, domain.ErrUserExists) {
		lg.Info("seed data already present, skipping")
		return
	}
	if err != nil {
		log.Fatalf("create pm: %v", err)
	}

	lead, _, err := lc.CreateUser(ctx, membershipservice.NewUser{Email: "lead@example.com", Username: "lead", Name: "Team Lead"})
	if err != nil {
		log.Fatalf("create lead: %v", err)
	}
	dev, _, err := lc.CreateUser(ctx, membershipservice.NewUser{Email: "dev@example.com", Username: "dev", Name: "Developer"})
	if err != nil {
		log.Fatalf("create dev: %v", err)
	}
	if _, err := lc.AddMember(ctx, pm, team.ID, lead.ID, domain.RoleManager); err != nil {
		log.Fatalf("add lead: %v", err)
	}
	if _, err := lc.AddMember(ctx, lead, team.ID, dev.ID, domain.RoleMember); err != nil {
		log.Fatalf("add dev: %v", err)
	}

	now := time.Now().UTC()
	managerID, devID, pmID := lead.ID, dev.ID, pm.ID
	project := &projectdomain.Project{
		ID:        uuid.New().String(),
		TeamID:    team.ID,
		Name:      "Website Relaunch",
		ManagerID: &managerID,
		Status:    projectdomain.ProjectStatusActive,
		CreatedAt: now,
	}
	tasks := []*taskdomain.Task{
		{Title: "Draft sitemap", AssignedTo: &devID, Status: taskdomain.StatusInProgress},
		{Title: "Pick color palette", AssignedTo: &devID, Status: taskdomain.StatusTodo},
		{Title: "Sign off copy", Status: taskdomain.StatusTodo},
	}
	err = repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := project.Validate(); err != nil {
			return err
		}
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		for _, t := range tasks {
			t.ID = uuid.New().String()
			t.ProjectID = project.ID
			t.CreatedBy = &pmID
			t.CreatedAt, t.UpdatedAt = now, now
			if err := t.Validate(); err != nil {
				return err
			}
			if err := tx.CreateTask(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("create project: %v", err)
	}
	lg.Info("seeded", "team_id", team.ID, "project_id", project.ID, "pm", pm.Email, "lead", lead.Email, "dev", dev.Email)
}
