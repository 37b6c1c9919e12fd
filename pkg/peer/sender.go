package peer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/mvcruz/lockstep/pkg/metrics"
	"github.com/mvcruz/lockstep/pkg/types"
)

const (
	dialTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	// a peer that refuses this many dial attempts is treated as unreachable
	maxSendRetries = 5
)

// Sender delivers one coordination message per TCP connection.
// Peers come and go during container startup, so each send retries
// with exponential backoff before giving up.
type Sender struct {
	log hclog.Logger
}

func NewSender(log hclog.Logger) *Sender {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Sender{log: log.Named("sender")}
}

func (s *Sender) Send(ctx context.Context, addr string, msg types.Message) error {
	op := func() error {
		if err := s.sendOnce(ctx, addr, msg); err != nil {
			s.log.Warn("failed to deliver message, retrying",
				"peer", addr, "kind", msg.Kind, "error", err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxSendRetries), ctx))
	if err != nil {
		return fmt.Errorf("peer %s: %w: %v", addr, types.ErrPeerUnreachable, err)
	}

	metrics.PeerMessagesTotal.WithLabelValues(string(msg.Kind), "sent").Inc()
	return nil
}

func (s *Sender) sendOnce(ctx context.Context, addr string, msg types.Message) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err = fmt.Fprintln(conn, msg.Encode())
	return err
}
