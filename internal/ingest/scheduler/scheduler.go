package scheduler

import (
	"context"
	"log"
	"time"

	authrepo "mailstream-backend/internal/auth/repository"
	"mailstream-backend/internal/ingest/usecase"
)

// SyncScheduler runs a periodic ingestion pass over every connected
// account. Push notifications carry most of the load; the schedule is
// the safety net for missed or dropped notifications.
type SyncScheduler struct {
	userRepo authrepo.UserRepository
	ingest   usecase.IngestUsecase
	interval time.Duration
	stopChan chan struct{}
}

// NewSyncScheduler creates a new scheduler
func NewSyncScheduler(userRepo authrepo.UserRepository, ingest usecase.IngestUsecase, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		userRepo: userRepo,
		ingest:   ingest,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	log.Printf("[SyncScheduler] Starting background sync scheduler (interval: %s)", s.interval)

	go func() {
		// Run immediately on start
		s.syncAllUsers()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.syncAllUsers()
			case <-s.stopChan:
				log.Println("[SyncScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}

// syncAllUsers runs one pass, one user at a time. A failure for one
// account never blocks the rest.
func (s *SyncScheduler) syncAllUsers() {
	users, err := s.userRepo.ListConnected()
	if err != nil {
		log.Printf("[SyncScheduler] Error listing connected users: %v", err)
		return
	}

	if len(users) == 0 {
		return
	}

	log.Printf("[SyncScheduler] Running scheduled sync for %d users", len(users))

	for _, user := range users {
		result, err := s.ingest.Sync(context.Background(), user.ID, false)
		if err != nil {
			log.Printf("[SyncScheduler] Sync failed for user %s: %v", user.ID, err)
			continue
		}
		if result.Error != nil {
			log.Printf("[SyncScheduler] Sync for user %s finished with error: %s", user.ID, *result.Error)
			continue
		}
		if result.Processed > 0 || result.Skipped > 0 {
			log.Printf("[SyncScheduler] User %s: %d processed, %d skipped", user.ID, result.Processed, result.Skipped)
		}
	}
}
