// Package services – Executor
//
// This file implements the command executor, the only component allowed to
// mutate list/item/preference state. Every command runs in exactly one
// database transaction that also carries its COMMAND_EXECUTED audit event,
// so an executed command without an audit record (or the reverse) cannot
// exist. Precondition failures roll the whole transaction back and surface
// as the domain errors in errors.go.
//
// Observability: Execute is OpenTelemetry-instrumented; spans carry the
// sender and command name.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/command"
	"github.com/tbourn/go-task-assistant/internal/domain"
	"github.com/tbourn/go-task-assistant/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor applies parsed commands to persistent state.
type Executor struct {
	DB *gorm.DB
}

// Execute runs cmd on behalf of sender and returns the reply text. All
// preconditions, the mutation, and the COMMAND_EXECUTED audit event share
// one transaction; no side effect happens outside it.
func (e *Executor) Execute(ctx context.Context, sender string, cmd command.Command) (string, error) {
	tr := otel.Tracer("services/Executor")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("sender", sender),
			attribute.String("command", cmd.Name()),
		),
	)
	defer span.End()

	var reply string
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			meta map[string]any
			err  error
		)
		switch c := cmd.(type) {
		case command.ListLists:
			reply, meta, err = e.listLists(ctx, tx, sender)
		case command.NewList:
			reply, meta, err = e.newList(tx, sender, c)
		case command.UseList:
			reply, meta, err = e.useList(tx, sender, c)
		case command.AddItem:
			reply, meta, err = e.addItem(tx, sender, c)
		case command.ListItems:
			reply, meta, err = e.listItems(ctx, tx, sender)
		case command.CompleteItem:
			reply, meta, err = e.completeItem(tx, sender, c)
		default:
			// command.Suggest is routed to the advisory engine before the
			// executor; anything else here is a programming error.
			return fmt.Errorf("unhandled command %s", cmd.Name())
		}
		if err != nil {
			return err
		}

		meta["cmd"] = cmd.Name()
		_, err = repo.AppendAudit(tx, sender, domain.EventCommandExecuted, meta)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (e *Executor) listLists(ctx context.Context, tx *gorm.DB, sender string) (string, map[string]any, error) {
	lists, err := repo.ListLists(ctx, tx, sender)
	if err != nil {
		return "", nil, err
	}
	return FormatLists(lists), map[string]any{"count": len(lists)}, nil
}

func (e *Executor) newList(tx *gorm.DB, sender string, c command.NewList) (string, map[string]any, error) {
	l, err := repo.CreateList(tx, sender, c.ListName)
	if errors.Is(err, repo.ErrDuplicate) {
		return "", nil, ErrDuplicateName
	}
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Created list %d (%s).", l.ID, l.Name),
		map[string]any{"list_id": l.ID, "name": l.Name}, nil
}

func (e *Executor) useList(tx *gorm.DB, sender string, c command.UseList) (string, map[string]any, error) {
	l, err := repo.GetList(tx, c.ListID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	// A list that belongs to someone else is indistinguishable from a
	// missing one; existence must not leak across senders.
	if l.OwnerSender != sender {
		return "", nil, ErrNotFound
	}
	if err := repo.SetPreference(tx, sender, l.ID); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Active list set to %s.", TitleName(l.Name)),
		map[string]any{"list_id": l.ID}, nil
}

func (e *Executor) addItem(tx *gorm.DB, sender string, c command.AddItem) (string, map[string]any, error) {
	l, err := e.activeList(tx, sender)
	if err != nil {
		return "", nil, err
	}
	it, err := repo.CreateItem(tx, l.ID, c.Text)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Added item %d to %s.", it.ItemID, TitleName(l.Name)),
		map[string]any{"list_id": l.ID, "item_id": it.ItemID, "text": it.Text}, nil
}

func (e *Executor) listItems(ctx context.Context, tx *gorm.DB, sender string) (string, map[string]any, error) {
	l, err := e.activeList(tx, sender)
	if err != nil {
		return "", nil, err
	}
	items, err := repo.ListItems(ctx, tx, l.ID)
	if err != nil {
		return "", nil, err
	}
	return FormatItems(l, items), map[string]any{"list_id": l.ID, "count": len(items)}, nil
}

func (e *Executor) completeItem(tx *gorm.DB, sender string, c command.CompleteItem) (string, map[string]any, error) {
	l, err := e.activeList(tx, sender)
	if err != nil {
		return "", nil, err
	}
	err = repo.MarkItemDone(tx, l.ID, c.ItemID, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Marked item %d done.", c.ItemID),
		map[string]any{"list_id": l.ID, "item_id": c.ItemID}, nil
}

// activeList resolves the sender's active list inside the current
// transaction, enforcing both selection and ownership.
func (e *Executor) activeList(tx *gorm.DB, sender string) (*domain.List, error) {
	var p domain.Preference
	err := tx.Where("sender = ?", sender).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveList
	}
	if err != nil {
		return nil, err
	}

	l, err := repo.GetList(tx, p.ActiveListID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoActiveList
	}
	if err != nil {
		return nil, err
	}
	if l.OwnerSender != sender {
		return nil, ErrNotOwner
	}
	return l, nil
}
