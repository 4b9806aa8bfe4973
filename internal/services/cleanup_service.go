package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"settlement-backend/internal/metrics"
)

// CleanupService periodically expires overdue pending requests so escrowed
// funds are returned even when nobody submits a cleanup call.
type CleanupService struct {
	coordinator *SettlementCoordinator
	interval    time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
}

func NewCleanupService(coordinator *SettlementCoordinator, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CleanupService{
		coordinator: coordinator,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *CleanupService) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
		logrus.WithField("interval", s.interval).Info("cleanup service started")
	})
}

// Stop terminates the loop and waits for the in-flight sweep to finish.
func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		logrus.Info("cleanup service stopped")
	})
}

func (s *CleanupService) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

func (s *CleanupService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metrics.CleanupSweeps.Inc()
	n, err := s.coordinator.SweepExpired(ctx)
	if err != nil {
		logrus.WithError(err).Error("cleanup sweep failed")
		return
	}
	if n > 0 {
		logrus.WithField("expired", n).Info("cleanup sweep expired requests")
	}
}
