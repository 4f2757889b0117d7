package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"lessonhub/internal/dto"
	"lessonhub/internal/mailer"
	"lessonhub/internal/rabbit"
	"lessonhub/internal/repo"
)

// Reader consumes application lifecycle events and sends the applicant-facing
// cancellation email outside the request path. Applied events are only logged.
type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("lifecycle event reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.ApplicationEventMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("event", msg.Event).
				Int64("application_id", msg.ApplicationID).
				Int64("section_id", msg.SectionID).
				Msg("received lifecycle event")

			if msg.Event != dto.ApplicationEventCancelled {
				return nil
			}

			section, err := r.repo.GetSectionByID(cctx, msg.SectionID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Int64("section_id", msg.SectionID).
					Msg("Failed to get section from DB in worker")
				return nil
			}

			profile, err := r.repo.GetProfileByID(cctx, msg.UserID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Str("user_id", msg.UserID).
					Msg("Failed to get profile from DB in worker")
				return nil
			}

			reason := ""
			if msg.CancelReason != nil {
				reason = *msg.CancelReason
			}
			res := r.mail.NotifyCancellation(cctx, profile.Email, section, reason)
			if res.Err != nil {
				zlog.Logger.Warn().
					Err(res.Err).
					Msg("Failed to send cancellation notification on e-mail")
			} else if res.OK {
				zlog.Logger.Info().
					Str("email", profile.Email).
					Int64("application_id", msg.ApplicationID).
					Msg("cancellation email sent successfully")
			}

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("lifecycle event reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
