// cmd/historian/main.go is an asynchronous historian service that pops match
// action records from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/rummyhouse/rummy/internal/cache"
	"github.com/rummyhouse/rummy/internal/database"
)

// HistorianService encapsulates the Redis + DB logic for capturing match
// actions and marking matches abandoned after an inactivity threshold.
type HistorianService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration // duration until a match is marked "abandoned"
	lastActivity sync.Map      // map[uuid.UUID]time.Time per match

	batchMu  sync.Mutex
	batch    []cache.MatchActionRecord
	ctx      context.Context
	cancelFn context.CancelFunc

	// persist writes one drained batch. It runs outside batchMu so a flush can
	// never re-enter the buffer lock.
	persist func(batch []cache.MatchActionRecord)
}

// NewHistorianService constructs a HistorianService from environment variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("MATCH_INACTIVITY_TIMEOUT_SEC", 600) // default 10 min

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	hs := &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]cache.MatchActionRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
	hs.persist = hs.persistBatch
	return hs
}

// Run starts the two main loops: the Redis consumer that batches actions into
// the DB, and the periodic inactivity check.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("rummy-historian service started.")
	<-hs.ctx.Done()
	log.Println("rummy-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve messages from the queue.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a 3-second timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record cache.MatchActionRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid action record: %v\n", err)
				continue
			}

			hs.lastActivity.Store(record.MatchID, time.Now())
			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch. When the threshold is
// reached the batch is drained under the lock and persisted after releasing it.
func (hs *HistorianService) appendToBatch(record cache.MatchActionRecord) {
	hs.batchMu.Lock()
	hs.batch = append(hs.batch, record)
	var full []cache.MatchActionRecord
	if len(hs.batch) >= hs.batchSize {
		full = hs.takeBatchLocked()
	}
	hs.batchMu.Unlock()

	if len(full) > 0 {
		hs.persist(full)
	}
}

// flushBatchToDB drains whatever is buffered regardless of size, so sparse
// traffic still reaches the database on the ticker.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	pending := hs.takeBatchLocked()
	hs.batchMu.Unlock()

	if len(pending) > 0 {
		hs.persist(pending)
	}
}

// takeBatchLocked copies the buffered records out and resets the buffer.
// Caller must hold batchMu.
func (hs *HistorianService) takeBatchLocked() []cache.MatchActionRecord {
	if len(hs.batch) == 0 {
		return nil
	}
	out := make([]cache.MatchActionRecord, len(hs.batch))
	copy(out, hs.batch)
	hs.batch = hs.batch[:0]
	return out
}

// persistBatch writes one batch to the database in a single transaction.
func (hs *HistorianService) persistBatch(batch []cache.MatchActionRecord) {
	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := insertMatchActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertMatchActionTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] persistBatch: %v\n", err)
	} else {
		log.Printf("Flushed %d actions to DB.\n", len(batch))
	}
}

// inactivityLoop periodically marks matches inactive beyond the threshold as abandoned.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				matchID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.markMatchAbandoned(matchID)
					hs.lastActivity.Delete(matchID)
				}
				return true
			})
		}
	}
}

// markMatchAbandoned marks a match 'abandoned' if it was still 'in_progress'.
func (hs *HistorianService) markMatchAbandoned(matchID uuid.UUID) {
	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE matches
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		_, e := tx.Exec(ctx, q, matchID)
		return e
	})
	if err != nil {
		log.Printf("failed to mark match %v abandoned: %v", matchID, err)
	} else {
		log.Printf("Marked match %v as 'abandoned' due to inactivity.", matchID)
	}
}

// insertMatchActionTx inserts a single action record into the match_actions
// table and upserts the match row. A match_end action finalizes the match.
func insertMatchActionTx(ctx context.Context, tx pgx.Tx, rec cache.MatchActionRecord) error {
	upsertMatchQ := `
		INSERT INTO matches (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id)
		DO NOTHING
	`
	_, err := tx.Exec(ctx, upsertMatchQ, rec.MatchID)
	if err != nil {
		return err
	}

	actionInsertQ := `
		INSERT INTO match_actions (
			match_id, action_index, actor_player_id, action_type, action_payload
		) VALUES ($1, $2, $3, $4, $5)
	`
	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, actionInsertQ,
		rec.MatchID, rec.ActionIndex, rec.ActorPlayerID, rec.ActionType, jsonPayload,
	)
	if err != nil {
		return err
	}

	if rec.ActionType == "match_end" {
		finalizeQ := `
			UPDATE matches
			SET status = 'completed', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.MatchID); err != nil {
			return err
		}
	}
	return nil
}

// beginTxFunc starts a transaction on the pool, calls f, and commits or rolls back.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt parses an integer environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
