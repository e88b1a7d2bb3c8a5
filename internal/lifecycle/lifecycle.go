// Package lifecycle holds the canonical order status transition table.
//
// Every status change in the system is one of the rules below. Callers ask
// Decide for a verdict before persisting anything, then perform the update
// conditionally on the rule's From set so concurrent writers cannot both win.
package lifecycle

import (
	"slices"

	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/enum"
)

// Stamp names the payment fields a transition fills in.
type Stamp int

const (
	StampNone Stamp = iota
	StampPaymentProof
	StampVerification
	StampRejection
)

// Room is a notification audience for a transition.
type Room int

const (
	RoomKitchen Room = iota + 1
	RoomOrder
)

// Rule is one allowed edge of the state machine.
type Rule struct {
	Entry  string
	Actor  string
	From   []database.OrderStatus
	To     database.OrderStatus
	Stamp  Stamp
	Notify []Room
}

// FromStrings returns the From set in the form the store query takes.
func (r Rule) FromStrings() []string {
	out := make([]string, len(r.From))
	for i, s := range r.From {
		out[i] = string(s)
	}
	return out
}

// Permits reports whether the rule applies to an order currently in status.
func (r Rule) Permits(status database.OrderStatus) bool {
	return slices.Contains(r.From, status)
}

// Notifies reports whether the rule fans out to room.
func (r Rule) Notifies(room Room) bool {
	return slices.Contains(r.Notify, room)
}

var (
	orderOnly      = []Room{RoomOrder}
	kitchenAndUser = []Room{RoomKitchen, RoomOrder}
)

var rules = []Rule{
	{
		Entry: enum.EntrySubmitPayment, Actor: enum.ActorCustomer,
		From: []database.OrderStatus{database.OrderStatusPendingPayment}, To: database.OrderStatusPaymentSubmitted,
		Stamp: StampPaymentProof,
	},
	{
		Entry: enum.EntryVerifyPayment, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{database.OrderStatusPaymentSubmitted}, To: database.OrderStatusVerified,
		Stamp: StampVerification, Notify: kitchenAndUser,
	},
	{
		Entry: enum.EntryVerifyPayment, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{database.OrderStatusPaymentSubmitted}, To: database.OrderStatusRejected,
		Stamp: StampRejection, Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{database.OrderStatusPaymentSubmitted}, To: database.OrderStatusVerified,
		Stamp: StampVerification, Notify: kitchenAndUser,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{database.OrderStatusVerified}, To: database.OrderStatusPreparing,
		Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{database.OrderStatusPreparing}, To: database.OrderStatusReady,
		Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{database.OrderStatusReady}, To: database.OrderStatusCompleted,
		Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorAdmin,
		From: []database.OrderStatus{
			database.OrderStatusPendingPayment,
			database.OrderStatusPaymentSubmitted,
			database.OrderStatusVerified,
			database.OrderStatusPreparing,
			database.OrderStatusReady,
		},
		To:     database.OrderStatusCancelled,
		Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorKitchen,
		From: []database.OrderStatus{database.OrderStatusVerified}, To: database.OrderStatusPreparing,
		Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorKitchen,
		From: []database.OrderStatus{database.OrderStatusPreparing}, To: database.OrderStatusReady,
		Notify: orderOnly,
	},
	{
		Entry: enum.EntrySetStatus, Actor: enum.ActorKitchen,
		From: []database.OrderStatus{database.OrderStatusReady}, To: database.OrderStatusCompleted,
		Notify: orderOnly,
	},
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	return slices.Clone(rules)
}

// Outcome classifies a verdict.
type Outcome int

const (
	// InvalidTarget: the target is not a status, or no actor can reach it
	// through this entry point.
	InvalidTarget Outcome = iota
	// Forbidden: some other actor may reach the target through this entry
	// point, but not this one.
	Forbidden
	Allowed
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Forbidden:
		return "forbidden"
	default:
		return "invalid_target"
	}
}

// Verdict is the result of Decide. Rule is set only when Outcome is Allowed.
type Verdict struct {
	Outcome Outcome
	Rule    Rule
}

// Decide looks up the rule for (entry, actor, target). It never inspects the
// current status of an order; that check belongs to the conditional update.
func Decide(entry, actor string, target database.OrderStatus) Verdict {
	if !target.Valid() {
		return Verdict{Outcome: InvalidTarget}
	}

	reachable := false
	for _, r := range rules {
		if r.Entry != entry || r.To != target {
			continue
		}
		if r.Actor == actor {
			return Verdict{Outcome: Allowed, Rule: r}
		}
		reachable = true
	}
	if reachable {
		return Verdict{Outcome: Forbidden}
	}
	return Verdict{Outcome: InvalidTarget}
}
