package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"assetline/internal/domain"
	"assetline/internal/engine/auth"
	"assetline/internal/events"
	"assetline/internal/repo"
)

// BootstrapRBAC seeds roles, permissions, and team membership from config.
// All inserts are idempotent so repeated runs converge on the config state.
func (e Engine) BootstrapRBAC(ctx context.Context, actorID string) error {
	if e.Config == nil {
		return errors.New("config is required to bootstrap rbac")
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	roleIDs := make([]string, 0, len(e.Config.RBAC.Roles))
	for id := range e.Config.RBAC.Roles {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)
	for _, id := range roleIDs {
		role := e.Config.RBAC.Roles[id]
		if err := e.Repo.InsertRole(ctx, tx, id, role.Description); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if err := e.Repo.InsertPermission(ctx, tx, perm, ""); err != nil {
				return err
			}
			if err := e.Repo.AddRolePermission(ctx, tx, id, perm); err != nil {
				return err
			}
		}
	}
	for _, member := range e.Config.Team {
		if err := e.Repo.EnsureActor(ctx, tx, member.ActorID, now); err != nil {
			return err
		}
		for _, roleID := range member.Roles {
			if err := e.Repo.AssignRole(ctx, tx, member.ActorID, roleID); err != nil {
				return err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "rbac.bootstrap", 0, "rbac", e.Config.Firm.ID, actorID, events.EventPayload{
		"roles": len(roleIDs),
		"team":  len(e.Config.Team),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GrantRole(ctx context.Context, actorID, roleID, byActorID string) error {
	if actorID == "" {
		return errors.New("actor_id is required")
	}
	ok, err := e.Repo.HasRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.granted", 0, "actor", actorID, byActorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, actorID, roleID, byActorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.revoked", 0, "actor", actorID, byActorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// WhoAmI reports the roles and effective permissions of an actor.
func (e Engine) WhoAmI(ctx context.Context, actorID string) (domain.ActorProfile, error) {
	if actorID == "" {
		return domain.ActorProfile{}, errors.New("actor_id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	defer tx.Rollback()

	svc := auth.Service{DB: e.DB}
	roles, err := svc.ActorRoles(ctx, tx, actorID)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	perms, err := svc.ActorPermissions(ctx, tx, actorID)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	return domain.ActorProfile{ActorID: actorID, Roles: roles, Permissions: perms}, nil
}

// Authorize verifies the actor holds a permission. Nil means allowed.
func (e Engine) Authorize(ctx context.Context, actorID, perm string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	svc := auth.Service{DB: e.DB}
	ok, err := svc.ActorHasPermission(ctx, tx, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: perm}
	}
	return nil
}

// CreateAPIKey mints a key for an actor. The raw key is returned exactly once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name, byActorID string) (string, domain.APIKey, error) {
	if actorID == "" {
		return "", domain.APIKey{}, errors.New("actor_id is required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "al_" + hex.EncodeToString(buf)
	now := e.now().UTC().Format(time.RFC3339)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", 0, "api_key", key.ID, byActorID, events.EventPayload{"actor_id": actorID}); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, id, byActorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKeyTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "apikey.revoked", 0, "api_key", id, byActorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
