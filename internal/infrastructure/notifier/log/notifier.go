package log_notifier

import (
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
)

// notifier writes every notification to the log. It's the default when no
// message bus is configured.
type notifier struct {
	logger *log.Entry
}

func NewNotifier() ports.Notifier {
	return &notifier{log.WithField("component", "notifier")}
}

func (n *notifier) NotifyStatusChanged(
	txID string, status domain.TransactionStatus, network string,
) {
	n.logger.WithFields(log.Fields{
		"transaction": txID,
		"status":      status.String(),
		"network":     network,
	}).Info("transaction status changed")
}

func (n *notifier) NotifyReadyForExecution(txID, network string, userIDs []string) {
	n.logger.WithFields(log.Fields{
		"transaction": txID,
		"network":     network,
		"users":       userIDs,
	}).Info("transaction ready for execution")
}

func (n *notifier) NotifyWaitingForSignatures(txID, network string, userIDs []string) {
	n.logger.WithFields(log.Fields{
		"transaction": txID,
		"network":     network,
		"users":       userIDs,
	}).Info("transaction waiting for signatures")
}

func (n *notifier) NotifyExecutionAction() {
	n.logger.Debug("transactions action")
}
