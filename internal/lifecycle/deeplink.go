package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/nudge/internal/constants"
	apperrors "github.com/julianstephens/nudge/internal/errors"
	"github.com/julianstephens/nudge/internal/logger"
	"github.com/julianstephens/nudge/internal/models"
	"github.com/julianstephens/nudge/internal/retry"
)

// DeepLink is what a tapped notification opens: nudge://reminder/<id>?fire=<unix>.
type DeepLink struct {
	ReminderID models.ReminderID
	FireAt     time.Time
}

func (l DeepLink) String() string {
	u := url.URL{
		Scheme:   constants.AppName,
		Host:     "reminder",
		Path:     "/" + l.ReminderID.String(),
		RawQuery: url.Values{"fire": {strconv.FormatInt(l.FireAt.Unix(), 10)}}.Encode(),
	}
	return u.String()
}

func ParseDeepLink(raw string) (DeepLink, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return DeepLink{}, fmt.Errorf("invalid deep link: %w", err)
	}
	if u.Scheme != constants.AppName || u.Host != "reminder" {
		return DeepLink{}, fmt.Errorf("invalid deep link %q", raw)
	}
	id, err := models.ParseReminderID(strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return DeepLink{}, err
	}
	secs, err := strconv.ParseInt(u.Query().Get("fire"), 10, 64)
	if err != nil {
		return DeepLink{}, fmt.Errorf("invalid deep link fire instant: %w", err)
	}
	return DeepLink{ReminderID: id, FireAt: time.Unix(secs, 0).UTC()}, nil
}

// ConsumeDeepLink records the tap a deep link stands for. The same link
// delivered twice within the dedupe window is recorded once; a store that is
// briefly unavailable is retried.
func (h *Host) ConsumeDeepLink(ctx context.Context, raw string) (bool, error) {
	link, err := ParseDeepLink(raw)
	if err != nil {
		return false, err
	}
	key := link.String()

	now := h.clock.Now()
	h.mu.Lock()
	for k, at := range h.links {
		if now.Sub(at) > h.dedupeWindow {
			delete(h.links, k)
		}
	}
	if _, seen := h.links[key]; seen {
		h.mu.Unlock()
		logger.Debug("Duplicate deep link ignored", "link", key)
		return false, nil
	}
	h.links[key] = now
	h.mu.Unlock()

	err = retry.Do(ctx, func(ctx context.Context) error {
		err := h.engine.RecordDelivery(ctx, link.ReminderID, link.FireAt, models.SourceTap)
		if apperrors.IsNotFound(err) {
			return retry.Permanent(err)
		}
		return err
	}, constants.NotifyMaxRetries, constants.NotifyRetryDelay, 2*constants.NotifyRetryDelay)
	if err != nil {
		// Allow a later delivery of the same link to try again.
		h.mu.Lock()
		delete(h.links, key)
		h.mu.Unlock()
		return false, err
	}
	return true, nil
}
