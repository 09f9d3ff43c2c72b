package ticket

import (
	"slices"
	"sync"
	"time"

	"tiendapos/backend/internal/domain"
)

// Collection is the set of open tickets on one terminal. It always holds at
// least one ticket and exactly one of them is active.
type Collection struct {
	tickets  []*Ticket
	activeID string
	now      func() time.Time
}

func NewCollection(now func() time.Time) *Collection {
	if now == nil {
		now = time.Now
	}
	c := &Collection{now: now}
	first := New(now())
	c.tickets = []*Ticket{first}
	c.activeID = first.ID()
	return c
}

func (c *Collection) Active() *Ticket {
	for _, t := range c.tickets {
		if t.ID() == c.activeID {
			return t
		}
	}
	c.activeID = c.tickets[0].ID()
	return c.tickets[0]
}

func (c *Collection) ActiveID() string {
	return c.Active().ID()
}

func (c *Collection) Get(id string) (*Ticket, error) {
	for _, t := range c.tickets {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, ErrTicketNotFound
}

func (c *Collection) Len() int {
	return len(c.tickets)
}

// NewTicket opens an empty ticket and makes it active.
func (c *Collection) NewTicket() *Ticket {
	t := New(c.now())
	c.tickets = append(c.tickets, t)
	c.activeID = t.ID()
	return t
}

// Activate switches the active ticket without touching any ticket's contents.
func (c *Collection) Activate(id string) error {
	if _, err := c.Get(id); err != nil {
		return err
	}
	c.activeID = id
	return nil
}

// Close discards a ticket. Closing the active ticket activates the first
// remaining one; closing the last ticket leaves a fresh empty one behind.
func (c *Collection) Close(id string) error {
	idx := slices.IndexFunc(c.tickets, func(t *Ticket) bool { return t.ID() == id })
	if idx < 0 {
		return ErrTicketNotFound
	}
	c.tickets = slices.Delete(c.tickets, idx, idx+1)
	if len(c.tickets) == 0 {
		c.tickets = []*Ticket{New(c.now())}
	}
	if id == c.activeID {
		c.activeID = c.tickets[0].ID()
	}
	return nil
}

// ResetActive replaces the active ticket with an empty one in the same slot.
// It runs after a successful checkout or hold.
func (c *Collection) ResetActive() *Ticket {
	active := c.Active()
	fresh := New(c.now())
	for i, t := range c.tickets {
		if t == active {
			c.tickets[i] = fresh
		}
	}
	c.activeID = fresh.ID()
	return fresh
}

func (c *Collection) View(terminalID string) domain.TicketView {
	view := domain.TicketView{
		TerminalID:     terminalID,
		ActiveTicketID: c.ActiveID(),
		Tickets:        make([]domain.TicketSnapshot, 0, len(c.tickets)),
	}
	for _, t := range c.tickets {
		view.Tickets = append(view.Tickets, t.Snapshot())
	}
	return view
}

// Registry owns one Collection per terminal.
type Registry struct {
	mu        sync.Mutex
	terminals map[string]*terminalTickets
	now       func() time.Time
}

type terminalTickets struct {
	mu      sync.Mutex
	tickets *Collection
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{terminals: map[string]*terminalTickets{}, now: now}
}

// Do runs fn with exclusive access to the tickets stored under key, creating
// the collection on first use. Different keys do not block each other.
func (r *Registry) Do(key string, fn func(*Collection) error) error {
	r.mu.Lock()
	entry, ok := r.terminals[key]
	if !ok {
		entry = &terminalTickets{tickets: NewCollection(r.now)}
		r.terminals[key] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.tickets)
}
