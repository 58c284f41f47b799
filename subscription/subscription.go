// Package subscription decides whether a user may use the bot based on their membership in the
// configured channel and group.
package subscription

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/log"
)

type Scope int

const (
	ScopeNone Scope = iota
	ScopeChannel
	ScopeGroup
	// ScopeBoth is never reported by Check. Callers use it to offer every join button at once.
	ScopeBoth
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeChannel:
		return "channel"
	case ScopeGroup:
		return "group"
	case ScopeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Includes reports whether a failure in s requires joining target.
func (s Scope) Includes(target Scope) bool {
	return s == target || (s == ScopeBoth && (target == ScopeChannel || target == ScopeGroup))
}

type Status string

const (
	StatusCreator       Status = "creator"
	StatusAdministrator Status = "administrator"
	StatusMember        Status = "member"
	StatusRestricted    Status = "restricted"
	StatusLeft          Status = "left"
	StatusKicked        Status = "kicked"
)

func (s Status) Subscribed() bool {
	return s != StatusLeft && s != StatusKicked
}

// Querier looks up the membership status of a user in the chat behind scope, which is either
// ScopeChannel or ScopeGroup.
type Querier interface {
	Status(ctx context.Context, scope Scope, userID int64) (Status, error)
}

type Result struct {
	OK      bool
	Failing Scope
}

type Gate struct {
	querier Querier
	logger  zerolog.Logger
}

func NewGate(querier Querier, logger zerolog.Logger) *Gate {
	return &Gate{querier: querier, logger: logger}
}

// Check evaluates the channel first and only asks about the group once the channel passes. A
// failed lookup counts as not subscribed.
func (g *Gate) Check(ctx context.Context, userID int64) Result {
	for _, scope := range []Scope{ScopeChannel, ScopeGroup} {
		if !g.subscribed(ctx, scope, userID) {
			return Result{OK: false, Failing: scope}
		}
	}
	return Result{OK: true, Failing: ScopeNone}
}

func (g *Gate) subscribed(ctx context.Context, scope Scope, userID int64) bool {
	status, err := g.querier.Status(ctx, scope, userID)
	if nil != err {
		ev := g.logger.Error().Int64("user_id", userID).Stringer("scope", scope)
		switch {
		case errutil.IsContext(ctx):
			ev.Err(ctx.Err()).Msg("Membership check aborted")
		case errutil.IsFlaw(err):
			ev.Func(log.Flaw(err)).Msg("Membership check failed")
		default:
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			ev.Func(log.Flaw(flaw.From(err).Append(flawP))).Msg("Membership check failed")
		}
		return false
	}
	g.logger.Trace().Int64("user_id", userID).Stringer("scope", scope).Str("status", string(status)).Msg("Membership checked")
	return status.Subscribed()
}
