// Package syncer coordinates REST-originated snapshot loads with live
// socket events so out-of-order arrival never corrupts the store. It
// subscribes to "server." and "conn." events on the bus and is the only
// writer feeding the conversation store.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/status"
	"github.com/fitpulse/fitchat/internal/store"
	"github.com/fitpulse/fitchat/internal/wire"
	"go.uber.org/zap"
)

// ViewState tracks the sync phase of the conversation currently in view.
type ViewState string

const (
	Idle           ViewState = "IDLE"
	LoadingHistory ViewState = "LOADING_HISTORY"
	Live           ViewState = "LIVE"
)

// Transport is the command-sending side of the socket connection.
type Transport interface {
	Send(cmd wire.Command) error
	IsConnected() bool
}

// Snapshots produces history/list snapshots over REST when the socket
// cannot serve them. Results feed the same store entry points as socket
// events.
type Snapshots interface {
	History(ctx context.Context, peerID string, limit, offset int) (wire.ConversationHistory, error)
	List(ctx context.Context) (wire.ConversationsList, error)
}

// Options are the controller's timing knobs.
type Options struct {
	// TypingWindow is the debounce window for outbound typing signals.
	TypingWindow time.Duration
	// TypingTTL is how long a remote typing indicator stays fresh.
	TypingTTL time.Duration
	// ReceiptWindow batches mark_messages_read sends for rapid arrivals.
	ReceiptWindow time.Duration
	// HistoryLimit is the page size for get_conversation requests.
	HistoryLimit int
}

// DefaultOptions returns the production timing knobs.
func DefaultOptions() Options {
	return Options{
		TypingWindow:  3 * time.Second,
		TypingTTL:     6 * time.Second,
		ReceiptWindow: 500 * time.Millisecond,
		HistoryLimit:  50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TypingWindow <= 0 {
		o.TypingWindow = d.TypingWindow
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = d.TypingTTL
	}
	if o.ReceiptWindow <= 0 {
		o.ReceiptWindow = d.ReceiptWindow
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	return o
}

// Controller is the sync state machine. It holds no message data itself,
// only coordination flags: the active view, pending-snapshot markers, and
// debounce timers.
type Controller struct {
	store     *store.Store
	transport Transport
	snapshots Snapshots
	bus       *bus.Bus
	logger    *zap.Logger
	opts      Options

	mu         sync.Mutex
	activePeer string
	viewState  ViewState
	pending    map[string]bool
	typing     map[string]*typingWindow
	receipts   map[string]bool
	receiptTmr *time.Timer

	cancel context.CancelFunc
}

// New creates a sync controller. snapshots may be nil when no REST
// fallback is available.
func New(s *store.Store, transport Transport, snapshots Snapshots, b *bus.Bus, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:     s,
		transport: transport,
		snapshots: snapshots,
		bus:       b,
		logger:    logger,
		opts:      opts.withDefaults(),
		viewState: Idle,
		pending:   make(map[string]bool),
		typing:    make(map[string]*typingWindow),
		receipts:  make(map[string]bool),
	}
}

// Start subscribes to server and connection events on the bus.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	serverSub := c.bus.Subscribe("server.", 256)
	connSub := c.bus.Subscribe("conn.state_changed", 16)

	go func() {
		defer serverSub.Cancel()
		defer connSub.Cancel()
		for {
			select {
			case evt := <-serverSub.C:
				c.handleServerEvent(evt)
			case evt := <-connSub.C:
				c.handleConnEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the controller and releases its timers.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.receiptTmr != nil {
		c.receiptTmr.Stop()
		c.receiptTmr = nil
	}
	windows := c.typing
	c.typing = make(map[string]*typingWindow)
	c.mu.Unlock()
	for _, w := range windows {
		w.stopTimer.Stop()
	}
}

// ActiveView returns the peer currently in view and its sync phase.
func (c *Controller) ActiveView() (string, ViewState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activePeer, c.viewState
}

func (c *Controller) handleServerEvent(evt bus.Event) {
	switch e := evt.Payload.(type) {
	case wire.NewMessage:
		m := store.FromWire(e.Message)
		if !c.store.ApplyNewMessage(m) {
			return
		}
		// Inbound message for the open conversation: the user is looking
		// at it, so acknowledge the read (batched).
		c.mu.Lock()
		active := c.activePeer
		c.mu.Unlock()
		if active != "" && m.SenderID == active && m.RecipientID == c.store.LocalUserID() {
			c.scheduleReceipt(active)
		}
	case wire.MessageSent:
		// Server echo of our own send; same idempotent insert path.
		c.store.ApplyNewMessage(store.FromWire(e.Message))
	case wire.ConversationHistory:
		c.ingestHistory(e, false)
	case wire.ConversationsList:
		c.store.ApplyConversationsList(e.Conversations)
	case wire.UnreadCount:
		c.store.ApplyServerUnread(e.Count)
	case wire.MessagesRead:
		if e.ReadBy == c.store.LocalUserID() {
			// Echo of our own mark_messages_read; already applied locally.
			return
		}
		// Globally true state: applied regardless of the active view.
		c.store.ApplyReadReceipt(e.ReadBy, e.ReadAt)
	case wire.UserTyping:
		c.store.SetTyping(e.UserID, e.UserName, time.Now().Add(c.opts.TypingTTL))
	case wire.UserStoppedTyping:
		c.store.ClearTyping(e.UserID)
	case wire.UserPresenceChanged:
		c.store.ApplyPresence(e.UserID, e.Status)
	case wire.ServerError:
		c.logger.Warn("server error", zap.String("message", e.Message))
	}
}

func (c *Controller) handleConnEvent(evt bus.Event) {
	change, ok := evt.Payload.(status.StateChange)
	if !ok {
		return
	}
	switch change.To {
	case status.Connected:
		c.resync()
	case status.Disconnected:
		// Typing indicators are ephemeral; their stop events are lost
		// with the connection.
		c.store.ResetTyping()
		c.resetLocalTyping()
	}
}

// resync treats every (re)connect as a full resync point: messages sent
// while disconnected are assumed lost from the transport's perspective.
func (c *Controller) resync() {
	c.send(wire.SetOnline{})
	c.send(wire.GetConversationsList{})

	c.mu.Lock()
	active := c.activePeer
	if active != "" {
		c.pending[active] = true
		c.viewState = LoadingHistory
	}
	c.mu.Unlock()

	if active != "" {
		c.send(wire.GetConversation{PeerID: active, Limit: c.opts.HistoryLimit})
	}
	c.logger.Info("resync issued", zap.String("active_peer", active))
}

// ingestHistory applies a conversation snapshot. Socket-delivered
// snapshots are only applied while one is pending for that peer; anything
// else is a stale answer to a view the user already left.
func (c *Controller) ingestHistory(h wire.ConversationHistory, fromPull bool) {
	c.mu.Lock()
	if !fromPull && !c.pending[h.PeerID] {
		c.mu.Unlock()
		c.logger.Debug("stale history discarded", zap.String("peer_id", h.PeerID))
		return
	}
	delete(c.pending, h.PeerID)
	isActive := c.activePeer == h.PeerID
	if isActive {
		c.viewState = Live
	}
	c.mu.Unlock()

	msgs := make([]store.Message, len(h.Messages))
	for i, m := range h.Messages {
		msgs[i] = store.FromWire(m)
	}
	c.store.ApplyConversationHistory(h.PeerID, msgs)

	if isActive {
		c.markRead(h.PeerID)
	}
	c.publish("sync.history_applied", store.ConversationRef{PeerID: h.PeerID})
}

// IngestHistory feeds a REST-fetched history snapshot through the same
// apply path as socket events.
func (c *Controller) IngestHistory(h wire.ConversationHistory) {
	c.ingestHistory(h, true)
}

// IngestList feeds a REST-fetched conversation list into the store.
func (c *Controller) IngestList(l wire.ConversationsList) {
	c.store.ApplyConversationsList(l.Conversations)
	c.publish("sync.list_applied", len(l.Conversations))
}

// send is fire-and-forget: a rejected command while disconnected is
// expected and resolved by the resync on the next connect.
func (c *Controller) send(cmd wire.Command) {
	if err := c.transport.Send(cmd); err != nil {
		c.logger.Debug("command not sent", zap.String("command", cmd.Name()), zap.Error(err))
	}
}

func (c *Controller) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
