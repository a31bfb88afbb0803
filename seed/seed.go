// Package seed loads the reference data a fresh Taskhub database needs:
// the four global roles, the default project and task states, a set of
// categories and one demo account per role.
//
// Every step is idempotent. Running it against a seeded database leaves
// existing records untouched.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/taskhub/auth"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

// RoleDescriptions are the descriptions of the built-in roles.
var RoleDescriptions = map[string]string{
	workflow.RoleAdmin:          "Administrador del sistema con todos los permisos",
	workflow.RoleProjectManager: "Gestor de proyectos con permisos de gestión",
	workflow.RoleDeveloper:      "Desarrollador con permisos básicos",
	workflow.RoleViewer:         "Solo lectura del sistema",
}

// roleOrder fixes creation order so listings are stable.
var roleOrder = []string{
	workflow.RoleAdmin,
	workflow.RoleProjectManager,
	workflow.RoleDeveloper,
	workflow.RoleViewer,
}

// DefaultCategories are created when missing, matched by name.
var DefaultCategories = []workflow.Category{
	{Name: "Web Development", Description: "Desarrollo de aplicaciones web"},
	{Name: "Mobile Development", Description: "Aplicaciones móviles nativas e híbridas"},
	{Name: "Data Science", Description: "Análisis de datos y aprendizaje automático"},
	{Name: "Infrastructure", Description: "Infraestructura, redes y operaciones"},
}

// Account is a demo login.
type Account struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// DefaultAccounts are the demo logins, one per role.
var DefaultAccounts = []Account{
	{FirstName: "Admin", LastName: "System", Email: "admin@test.com", Password: "admin123", Role: workflow.RoleAdmin},
	{FirstName: "Project", LastName: "Manager", Email: "pm@test.com", Password: "pm123456", Role: workflow.RoleProjectManager},
	{FirstName: "Developer", LastName: "User", Email: "dev@test.com", Password: "dev123456", Role: workflow.RoleDeveloper},
	{FirstName: "Viewer", LastName: "User", Email: "viewer@test.com", Password: "viewer123", Role: workflow.RoleViewer},
}

// Options selects what to seed.
type Options struct {
	// SkipAccounts leaves the demo accounts out, for production databases.
	SkipAccounts bool

	Hasher auth.Hasher
	Logger *slog.Logger
}

// Result reports the seeded records.
type Result struct {
	Roles      map[string]*workflow.Role
	States     []*workflow.State
	Categories []*workflow.Category

	// Users are keyed by e-mail.
	Users map[string]*workflow.User

	// Created counts records inserted by this run.
	Created int
}

// Run seeds store.
func Run(ctx context.Context, store *storage.Store, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := &Result{
		Roles: make(map[string]*workflow.Role, len(roleOrder)),
		Users: make(map[string]*workflow.User, len(DefaultAccounts)),
	}

	for _, name := range roleOrder {
		role, err := store.EnsureRole(ctx, name, RoleDescriptions[name])
		if err != nil {
			return nil, fmt.Errorf("seed role %s: %w", name, err)
		}
		res.Roles[name] = role
	}

	for _, def := range workflow.DefaultStates() {
		st, err := ensureState(ctx, store, def)
		if err != nil {
			return nil, fmt.Errorf("seed state %s/%s: %w", def.Type, def.Name, err)
		}
		res.States = append(res.States, st)
	}

	cats, created, err := ensureCategories(ctx, store)
	if err != nil {
		return nil, err
	}
	res.Categories = cats
	res.Created += created

	if !opts.SkipAccounts {
		for _, acc := range DefaultAccounts {
			u, created, err := ensureAccount(ctx, store, opts.Hasher, acc, res.Roles[acc.Role])
			if err != nil {
				return nil, fmt.Errorf("seed account %s: %w", acc.Email, err)
			}
			if created {
				res.Created++
				logger.Info("Seeded account", "email", acc.Email, "role", acc.Role)
			}
			res.Users[u.Email] = u
		}
	}

	logger.Info("Seed complete",
		"roles", len(res.Roles),
		"states", len(res.States),
		"categories", len(res.Categories),
		"users", len(res.Users),
		"created", res.Created)
	return res, nil
}

// ensureState creates def when no state of that type and name exists.
// Existing states keep their flags.
func ensureState(ctx context.Context, store *storage.Store, def workflow.State) (*workflow.State, error) {
	st, err := store.GetStateByName(ctx, def.Type, def.Name)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	def.IsActive = true
	if err := store.CreateState(ctx, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func ensureCategories(ctx context.Context, store *storage.Store) ([]*workflow.Category, int, error) {
	existing, err := store.ListCategories(ctx, false)
	if err != nil {
		return nil, 0, fmt.Errorf("seed categories: %w", err)
	}
	byName := make(map[string]*workflow.Category, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c
	}

	var (
		out     []*workflow.Category
		created int
	)
	for _, def := range DefaultCategories {
		if c, ok := byName[strings.ToLower(def.Name)]; ok {
			out = append(out, c)
			continue
		}
		c := def
		c.IsActive = true
		if err := store.CreateCategory(ctx, &c); err != nil {
			return nil, 0, fmt.Errorf("seed category %s: %w", def.Name, err)
		}
		out = append(out, &c)
		created++
	}
	return out, created, nil
}

func ensureAccount(ctx context.Context, store *storage.Store, hasher auth.Hasher, acc Account, role *workflow.Role) (*workflow.User, bool, error) {
	u, err := store.GetUserByEmail(ctx, acc.Email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	hash, err := hasher.Hash(acc.Password)
	if err != nil {
		return nil, false, err
	}
	u = &workflow.User{
		FirstName:       acc.FirstName,
		LastName:        acc.LastName,
		Email:           acc.Email,
		PasswordHash:    hash,
		GlobalRole:      role.ID,
		RoleName:        role.Name,
		IsActive:        true,
		IsEmailVerified: true,
	}
	if err := store.CreateUser(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}
