// internal/infrastructure/api/relay/sweep.go
package relay

import (
	"time"

	"bsc-trading-assistant-bot/internal/core/walletsession"
	"bsc-trading-assistant-bot/pkg/logger"
)

// sweepLoop следит за сроками: просроченные пейринги получают отказ,
// истекшие сессии снимаются с учета с событием наверх
func (c *Client) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Client) sweep(now time.Time) {
	for _, p := range c.pairings.expired(now) {
		taken, ok := c.pairings.take(p.topic)
		if !ok {
			continue
		}
		c.unsubscribeQuiet(taken.topic)
		taken.approval <- walletsession.ApprovalResult{Err: ErrProposalExpired}
		logger.Info("🧹 Пейринг %s истек без ответа кошелька", shortTopic(p.topic))
	}

	for _, entry := range c.sessions.expired(now) {
		c.dropSession(entry.Topic)
		c.emit(walletsession.SessionExpired{Topic: entry.Topic})
		logger.Info("🧹 Сессия %s истекла", shortTopic(entry.Topic))
	}
}
