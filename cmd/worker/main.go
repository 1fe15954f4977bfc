package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"schoolops/internal/config"
	"schoolops/internal/engine"
	"schoolops/internal/logging"
	"schoolops/internal/notify"
	"schoolops/internal/queue"
	"schoolops/internal/roster"
	"schoolops/internal/store"
)

// Worker consumes check-in messages to watch absence streaks, and runs a
// daily cron job after the grace windows close to send per-class absence
// summaries.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schoolops:checkins")
	}

	repo := roster.NewRepository(db.Client)
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warnf("timezone %q unavailable, using fixed UTC+7: %v", cfg.Timezone, err)
		loc = time.FixedZone("ICT", 7*60*60)
	}
	svc, err := roster.NewService(ctx, repo, redisClient.Client, log,
		engine.WithLocation(loc),
		engine.WithLateWindow(cfg.LateWindowMinutes),
		engine.WithStreakLookback(cfg.StreakLookbackDays),
	)
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	notifier, err := notify.New(cfg.TelegramToken, cfg.AlertChatID)
	if err != nil {
		log.Fatalf("notifier init failed: %v", err)
	}
	if notifier == nil {
		log.Info("telegram not configured, alerts disabled")
	}

	w := &worker{
		svc:          svc,
		repo:         repo,
		notifier:     notifier,
		log:          log,
		alertMin:     cfg.StreakAlertMinCount,
		alertedToday: map[string]string{},
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.CronDailySummary, func() {
		if err := w.dailySummary(ctx); err != nil {
			log.WithError(err).Error("daily summary failed")
		}
	}); err != nil {
		log.Fatalf("bad cron spec %q: %v", cfg.CronDailySummary, err)
	}
	c.Start()
	defer c.Stop()

	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}

	log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("worker exiting")
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := w.handle(ctx, msg); err != nil {
				log.WithError(err).WithField("type", msg.Type).Error("message handling failed")
			}
		}
	}
}

type worker struct {
	svc      *roster.Service
	repo     *roster.Repository
	notifier *notify.Notifier
	log      *logrus.Logger
	alertMin int

	// alertedToday dedupes streak alerts: student id -> date key of the
	// last alert sent.
	alertedToday map[string]string
}

func (w *worker) handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeCheckIn:
		var body queue.CheckInBody
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			return err
		}
		return w.watchStreak(ctx, body.StudentID)
	default:
		w.log.WithField("type", msg.Type).Debug("ignoring unknown message type")
		return nil
	}
}

// watchStreak recomputes one student's streak and alerts once per day
// when it crosses the threshold.
func (w *worker) watchStreak(ctx context.Context, studentID string) error {
	streak, err := w.svc.Streak(ctx, studentID)
	if err != nil {
		return err
	}
	if streak.Count < w.alertMin {
		return nil
	}
	today := w.svc.Engine().DateKey(w.svc.Engine().Today())
	if w.alertedToday[studentID] == today {
		return nil
	}
	st, err := w.repo.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{
		"student": studentID,
		"count":   streak.Count,
	}).Warn("absence streak threshold reached")
	if err := w.notifier.StreakAlert(st, streak); err != nil {
		return err
	}
	w.alertedToday[studentID] = today
	return nil
}

// dailySummary resolves today's status for every active student and
// sends one absence report per class. It runs after every shift's grace
// window has closed, so today is fully resolvable.
func (w *worker) dailySummary(ctx context.Context) error {
	eng := w.svc.Engine()
	today := eng.Today()
	todayKey := eng.DateKey(today)

	students, err := w.repo.ListStudents(ctx, "")
	if err != nil {
		return err
	}

	absentByClass := map[string][]string{}
	for _, st := range students {
		verdict, err := w.svc.DailyStatus(ctx, st.ID, todayKey)
		if err != nil {
			w.log.WithError(err).WithField("student", st.ID).Warn("daily status failed")
			continue
		}
		if _, ok := absentByClass[st.Class]; !ok {
			absentByClass[st.Class] = nil
		}
		if verdict.Status == engine.StatusAbsent {
			absentByClass[st.Class] = append(absentByClass[st.Class], st.FullName)
		}
	}

	for classKey, absent := range absentByClass {
		w.log.WithFields(logrus.Fields{
			"date":   todayKey,
			"class":  classKey,
			"absent": len(absent),
		}).Info("daily absence summary")
		if err := w.notifier.DailySummary(todayKey, classKey, absent); err != nil {
			w.log.WithError(err).WithField("class", classKey).Error("summary send failed")
		}
	}
	return nil
}
