// Package serial mints human-readable, per-(entity, year) sequential numbers
// such as CN-2025-000042.
package serial

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/utils"
)

// EntityKind is the closed set of things that get serial numbers
type EntityKind string

const (
	KindProperty EntityKind = "PROPERTY"
	KindAuction  EntityKind = "AUCTION"
	KindContract EntityKind = "CONTRACT"
	KindInvoice  EntityKind = "INVOICE"
	KindPayment  EntityKind = "PAYMENT"
	KindTask     EntityKind = "TASK"
	KindTicket   EntityKind = "TICKET"
)

var defaultPrefixes = map[EntityKind]string{
	KindProperty: "PRP",
	KindAuction:  "AUC",
	KindContract: "CN",
	KindInvoice:  "INV",
	KindPayment:  "PAY",
	KindTask:     "TSK",
	KindTicket:   "TCK",
}

// ErrUnknownEntity is returned for kinds outside the closed enum
var ErrUnknownEntity = errors.New("unknown entity kind")

// ErrInvalidOptions is returned for a negative year or an oversized width
var ErrInvalidOptions = errors.New("invalid serial options")

// MaxWidth bounds the zero-padded counter width
const MaxWidth = 20

// Kinds lists every entity kind
func Kinds() []EntityKind {
	return []EntityKind{KindProperty, KindAuction, KindContract, KindInvoice, KindPayment, KindTask, KindTicket}
}

// ParseEntityKind accepts any casing ("contract", "CONTRACT")
func ParseEntityKind(s string) (EntityKind, error) {
	kind := EntityKind(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := defaultPrefixes[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
	}
	return kind, nil
}

// Prefix returns the default serial prefix of the kind
func (k EntityKind) Prefix() string {
	return defaultPrefixes[k]
}

// ResetPolicy decides whether counters restart every calendar year
type ResetPolicy string

const (
	ResetYearly ResetPolicy = "yearly"
	ResetNever  ResetPolicy = "never"
)

// ParseResetPolicy validates a policy name; empty means yearly
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch ResetPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResetYearly:
		return ResetYearly, nil
	case ResetNever:
		return ResetNever, nil
	}
	return "", fmt.Errorf("unknown reset policy %q", s)
}

// Options tune a single issuance. Zero values fall back to the issuer defaults.
type Options struct {
	Year        int
	Width       int
	Prefix      string
	ResetPolicy ResetPolicy

	// audit context, optional
	ActorID   string
	IPAddress string
	UserAgent string
}

// Serial is an issued number
type Serial struct {
	Kind    EntityKind `json:"entityKind"`
	Year    int        `json:"year"`
	Counter int64      `json:"counter"`
	Value   string     `json:"serial"`
}

func (s Serial) String() string { return s.Value }

// CounterStore performs the atomic increment for a key.
// Year 0 is the permanent key used by ResetNever.
type CounterStore interface {
	Increment(ctx context.Context, kind EntityKind, year int) (int64, error)
	Current(ctx context.Context, kind EntityKind, year int) (int64, error)
}

// AuditSink receives a record of every issued serial
type AuditSink interface {
	Record(ctx context.Context, entry models.SerialAuditLog) error
}

// Issuer hands out serials
type Issuer struct {
	counters CounterStore
	audit    AuditSink
	defaults Options
	locks    *utils.KeyedMutex
	now      func() time.Time
}

// NewIssuer builds an issuer. audit may be nil.
func NewIssuer(counters CounterStore, audit AuditSink, defaults Options) *Issuer {
	if defaults.Width <= 0 {
		defaults.Width = 6
	}
	if defaults.ResetPolicy == "" {
		defaults.ResetPolicy = ResetYearly
	}
	return &Issuer{
		counters: counters,
		audit:    audit,
		defaults: defaults,
		locks:    utils.NewKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for the default year
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

type resolved struct {
	kind        EntityKind
	keyYear     int
	displayYear int
	width       int
	prefix      string
}

func (i *Issuer) resolve(kind EntityKind, opts Options) (resolved, error) {
	if _, ok := defaultPrefixes[kind]; !ok {
		return resolved{}, fmt.Errorf("%w: %q", ErrUnknownEntity, kind)
	}
	if opts.Year < 0 {
		return resolved{}, fmt.Errorf("%w: year %d", ErrInvalidOptions, opts.Year)
	}
	r := resolved{kind: kind, width: opts.Width, prefix: opts.Prefix}
	if r.width <= 0 {
		r.width = i.defaults.Width
	}
	if r.width > MaxWidth {
		return resolved{}, fmt.Errorf("%w: width %d exceeds %d", ErrInvalidOptions, r.width, MaxWidth)
	}
	if r.prefix == "" {
		r.prefix = i.defaults.Prefix
	}
	if r.prefix == "" {
		r.prefix = kind.Prefix()
	}

	policy := opts.ResetPolicy
	if policy == "" {
		policy = i.defaults.ResetPolicy
	}
	year := opts.Year
	if year == 0 {
		year = i.now().Year()
	}

	switch policy {
	case ResetYearly:
		r.keyYear, r.displayYear = year, year
	case ResetNever:
		r.keyYear, r.displayYear = 0, i.now().Year()
	default:
		return resolved{}, fmt.Errorf("unknown reset policy %q", policy)
	}
	return r, nil
}

func lockKey(kind EntityKind, year int) string {
	return fmt.Sprintf("%s/%d", kind, year)
}

// IssueNextSerial atomically allocates the next counter for the key and
// formats it. Only storage failures are returned; audit failures are logged.
func (i *Issuer) IssueNextSerial(ctx context.Context, kind EntityKind, opts Options) (Serial, error) {
	r, err := i.resolve(kind, opts)
	if err != nil {
		return Serial{}, err
	}

	counter, err := i.increment(ctx, r)
	if err != nil {
		return Serial{}, err
	}

	s := Serial{
		Kind:    r.kind,
		Year:    r.displayYear,
		Counter: counter,
		Value:   Format(r.prefix, r.displayYear, counter, r.width),
	}

	if i.audit != nil {
		entry := models.SerialAuditLog{
			EntityKind: string(r.kind),
			Year:       r.keyYear,
			Counter:    counter,
			Serial:     s.Value,
			ActorID:    opts.ActorID,
			IPAddress:  opts.IPAddress,
			UserAgent:  opts.UserAgent,
		}
		// the serial is already allocated; a failed audit write must not undo it
		if err := i.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
			log.Printf("⚠️ Serial audit log failed for %s: %v", s.Value, err)
		}
	}
	return s, nil
}

func (i *Issuer) increment(ctx context.Context, r resolved) (int64, error) {
	unlock := i.locks.Lock(lockKey(r.kind, r.keyYear))
	defer unlock()
	return i.counters.Increment(ctx, r.kind, r.keyYear)
}

// Peek returns the last issued counter without incrementing
func (i *Issuer) Peek(ctx context.Context, kind EntityKind, opts Options) (Serial, error) {
	r, err := i.resolve(kind, opts)
	if err != nil {
		return Serial{}, err
	}
	counter, err := i.counters.Current(ctx, r.kind, r.keyYear)
	if err != nil {
		return Serial{}, err
	}
	s := Serial{Kind: r.kind, Year: r.displayYear, Counter: counter}
	if counter > 0 {
		s.Value = Format(r.prefix, r.displayYear, counter, r.width)
	}
	return s, nil
}

// Format renders {prefix}-{year}-{counter padded to width}
func Format(prefix string, year int, counter int64, width int) string {
	return fmt.Sprintf("%s-%d-%0*d", prefix, year, width, counter)
}
