package syncer

import (
	"context"
	"time"

	"github.com/fitpulse/fitchat/internal/wire"
	"go.uber.org/zap"
)

// OpenConversation marks peerID as the conversation in view and requests
// its history snapshot. Falls back to the REST snapshot client when the
// socket is down.
func (c *Controller) OpenConversation(peerID string) {
	c.mu.Lock()
	c.activePeer = peerID
	c.viewState = LoadingHistory
	c.pending[peerID] = true
	c.mu.Unlock()

	if err := c.transport.Send(wire.GetConversation{PeerID: peerID, Limit: c.opts.HistoryLimit}); err != nil {
		c.logger.Debug("socket unavailable for history, trying REST",
			zap.String("peer_id", peerID), zap.Error(err))
		c.fetchHistoryREST(peerID)
	}
}

// CloseConversation leaves the current view. In-flight requests are not
// aborted; their late answers are filtered out instead.
func (c *Controller) CloseConversation() {
	c.mu.Lock()
	if c.activePeer != "" {
		delete(c.pending, c.activePeer)
	}
	c.activePeer = ""
	c.viewState = Idle
	c.mu.Unlock()
}

// SendMessage delivers a message to recipientID. Fire-and-forget: the
// server's message_sent echo is what lands it in the store.
func (c *Controller) SendMessage(recipientID, content, replyToID string) error {
	return c.transport.Send(wire.SendMessage{
		RecipientID: recipientID,
		Content:     content,
		ReplyToID:   replyToID,
	})
}

// MarkRead immediately acknowledges everything peerID sent us.
func (c *Controller) MarkRead(peerID string) {
	c.markRead(peerID)
}

// RefreshConversations pulls the conversation list over REST, for callers
// that want a snapshot without waiting for the socket.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	list, err := c.snapshots.List(ctx)
	if err != nil {
		return err
	}
	c.IngestList(list)
	return nil
}

// markRead updates the local store optimistically and tells the server.
// The local update keeps the unread badge honest; the server does not
// echo our own reads back in a usable shape.
func (c *Controller) markRead(peerID string) {
	c.store.MarkConversationRead(peerID, wire.At(time.Now()))
	c.send(wire.MarkMessagesRead{PeerID: peerID})
}

// scheduleReceipt coalesces mark_messages_read sends: rapid message
// arrivals in the open conversation produce one acknowledgment per
// window instead of one per message.
func (c *Controller) scheduleReceipt(peerID string) {
	c.mu.Lock()
	c.receipts[peerID] = true
	if c.receiptTmr == nil {
		c.receiptTmr = time.AfterFunc(c.opts.ReceiptWindow, c.flushReceipts)
	}
	c.mu.Unlock()
}

func (c *Controller) flushReceipts() {
	c.mu.Lock()
	peers := make([]string, 0, len(c.receipts))
	for peerID := range c.receipts {
		peers = append(peers, peerID)
	}
	c.receipts = make(map[string]bool)
	c.receiptTmr = nil
	c.mu.Unlock()

	for _, peerID := range peers {
		c.markRead(peerID)
	}
}

// fetchHistoryREST pulls a history snapshot over REST in the background.
func (c *Controller) fetchHistoryREST(peerID string) {
	if c.snapshots == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		h, err := c.snapshots.History(ctx, peerID, c.opts.HistoryLimit, 0)
		if err != nil {
			c.logger.Warn("REST history fetch failed",
				zap.String("peer_id", peerID), zap.Error(err))
			return
		}
		c.ingestHistory(h, false)
	}()
}
