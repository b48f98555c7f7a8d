// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libsetforge.so (Android) / setforge.framework (iOS).
// All exported functions use C calling convention and are called from Dart FFI.
package main

/*
#cgo CFLAGS: -Wall -Wextra
#cgo LDFLAGS: -shared
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/kimhsiao/setforge/backend/internal/config"
	"github.com/kimhsiao/setforge/backend/internal/db"
	"github.com/kimhsiao/setforge/backend/internal/logging"
	"github.com/kimhsiao/setforge/backend/internal/models"
	"github.com/kimhsiao/setforge/backend/internal/services"
	syncpkg "github.com/kimhsiao/setforge/backend/internal/sync"
	"github.com/kimhsiao/setforge/backend/internal/sync/scheduler"
)

var (
	once        sync.Once
	database    *db.DB
	repo        *db.Repository
	workouts    *services.WorkoutService
	credentials *services.CredentialService
	oracle      *syncpkg.ManualOracle
	sched       *scheduler.Scheduler
	lastErr     string
	lastMu      sync.RWMutex
)

//export Init
// Init initializes the SetForge Core. dataDir is the app's documents
// directory; deviceID is a stable install identifier used to bind stored
// credentials to this device.
func Init(dataDir, deviceID *C.char) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			setLastError(fmt.Sprintf("Failed to load config: %v", err))
			return
		}
		logging.Init(os.Stdout, logLevel(cfg.Log.Level))

		database, err = db.Open(C.GoString(dataDir))
		if err != nil {
			setLastError(fmt.Sprintf("Failed to open database: %v", err))
			return
		}

		if err := db.NewMigrator(database.DB).Up(); err != nil {
			setLastError(fmt.Sprintf("Failed to apply migrations: %v", err))
			return
		}

		repo = db.NewRepository(database.DB)
		credentials = services.NewCredentialService(repo, C.GoString(deviceID))

		apiKey := cfg.Remote.APIKey
		if apiKey == "" {
			if stored, err := credentials.GetAPIKey(); err == nil {
				apiKey = stored
			}
		}

		store := syncpkg.NewQueueStore(repo, cfg.Sync.LockTTL, cfg.Sync.RetryCeiling)
		workouts = services.NewWorkoutService(store)

		var remote syncpkg.RemoteService = syncpkg.NewClient(&syncpkg.ClientConfig{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  apiKey,
			Timeout: cfg.Remote.Timeout,
		})
		if cfg.Remote.BreakerEnabled {
			remote = syncpkg.NewBreakerClient(remote)
		}

		policy, err := syncpkg.ParsePolicy(cfg.Sync.ConflictPolicy)
		if err != nil {
			setLastError(fmt.Sprintf("Invalid conflict policy: %v", err))
			return
		}

		// Connectivity on mobile comes from platform reachability callbacks
		// through SetOnlineStatus, not from probing.
		oracle = syncpkg.NewManualOracle(true)
		engine := syncpkg.NewEngine(store, remote, oracle, syncpkg.NewBus(), syncpkg.EngineConfig{
			RetryCeiling:        cfg.Sync.RetryCeiling,
			ConflictToleranceMs: cfg.Sync.ConflictToleranceMs,
			Policy:              policy,
		})

		sched = scheduler.NewScheduler(engine, &scheduler.Config{Interval: cfg.Sync.Interval})
		sched.Start(context.Background())
	})
}

//export Cleanup
// Cleanup stops the scheduler and closes the database.
func Cleanup() {
	if sched != nil {
		sched.Stop()
	}
	if repo != nil {
		repo.Close()
	}
	if database != nil {
		database.Close()
	}
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()

	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

// =====================================================
// Workout Operations
// =====================================================

//export SaveSession
// SaveSession queues a session aggregate for sync. sessionJSON is the session
// record; exercisesJSON and setsJSON are JSON arrays and may be null.
// Returns the session JSON with assigned ids; must be freed by the caller.
func SaveSession(sessionJSON, exercisesJSON, setsJSON *C.char) *C.char {
	if workouts == nil {
		setLastError("Core not initialized")
		return nil
	}

	var session models.Session
	if err := json.Unmarshal([]byte(C.GoString(sessionJSON)), &session); err != nil {
		setLastError(fmt.Sprintf("Invalid session JSON: %v", err))
		return nil
	}

	var exercises []*models.SessionExercise
	if exercisesJSON != nil {
		if err := json.Unmarshal([]byte(C.GoString(exercisesJSON)), &exercises); err != nil {
			setLastError(fmt.Sprintf("Invalid exercises JSON: %v", err))
			return nil
		}
	}

	var sets []*models.ExerciseSet
	if setsJSON != nil {
		if err := json.Unmarshal([]byte(C.GoString(setsJSON)), &sets); err != nil {
			setLastError(fmt.Sprintf("Invalid sets JSON: %v", err))
			return nil
		}
	}

	if err := workouts.SaveSession(&session, exercises, sets); err != nil {
		setLastError(fmt.Sprintf("Failed to save session: %v", err))
		return nil
	}

	data, err := json.Marshal(&session)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

//export DeleteSession
// DeleteSession queues deletion of a session aggregate.
// Returns 0 on success, non-zero on error.
func DeleteSession(id *C.char) int32 {
	if workouts == nil {
		setLastError("Core not initialized")
		return 1
	}
	if err := workouts.DeleteSession(C.GoString(id)); err != nil {
		setLastError(fmt.Sprintf("Failed to delete session: %v", err))
		return 1
	}
	return 0
}

//export SaveTemplate
// SaveTemplate queues a template create or update.
// Returns the template JSON with an assigned id; must be freed by the caller.
func SaveTemplate(templateJSON *C.char) *C.char {
	if workouts == nil {
		setLastError("Core not initialized")
		return nil
	}

	var template models.Template
	if err := json.Unmarshal([]byte(C.GoString(templateJSON)), &template); err != nil {
		setLastError(fmt.Sprintf("Invalid template JSON: %v", err))
		return nil
	}

	if err := workouts.SaveTemplate(&template); err != nil {
		setLastError(fmt.Sprintf("Failed to save template: %v", err))
		return nil
	}

	data, err := json.Marshal(&template)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// =====================================================
// Sync Operations
// =====================================================

//export TriggerSync
// TriggerSync starts a background sync run (app-foreground hook, post-write).
// Returns 1 when a run was started, 0 when one was already in flight.
func TriggerSync() int32 {
	if sched == nil {
		setLastError("Core not initialized")
		return 0
	}
	if sched.TriggerSync(context.Background()) {
		return 1
	}
	return 0
}

//export SyncNow
// SyncNow runs a sync pass and blocks until it completes.
// Returns {"synced":N,"failed":N} JSON; must be freed by the caller.
func SyncNow() *C.char {
	if sched == nil {
		setLastError("Core not initialized")
		return nil
	}

	result, err := sched.SyncNow(context.Background())
	if err != nil {
		setLastError(fmt.Sprintf("Sync failed: %v", err))
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

//export SetOnlineStatus
// SetOnlineStatus records the platform's reachability callback. The
// offline-to-online edge triggers an immediate sync run.
func SetOnlineStatus(isOnline int32) {
	if oracle == nil || sched == nil {
		return
	}
	online := isOnline != 0
	oracle.SetOnline(online)
	sched.SetOnlineStatus(context.Background(), online)
}

//export PendingCount
// PendingCount returns the number of queued mutations, or -1 on error.
func PendingCount() int32 {
	if workouts == nil {
		setLastError("Core not initialized")
		return -1
	}
	n, err := workouts.PendingCount()
	if err != nil {
		setLastError(fmt.Sprintf("Failed to count queue: %v", err))
		return -1
	}
	return int32(n)
}

//export StuckMutations
// StuckMutations returns mutations parked at the retry ceiling as a JSON
// array; must be freed by the caller.
func StuckMutations() *C.char {
	if workouts == nil {
		setLastError("Core not initialized")
		return nil
	}

	stuck, err := workouts.StuckMutations()
	if err != nil {
		setLastError(fmt.Sprintf("Failed to list stuck mutations: %v", err))
		return nil
	}

	data, err := json.Marshal(stuck)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// =====================================================
// Credential Operations
// =====================================================

//export SetAPIKey
// SetAPIKey stores the remote API key encrypted at rest. An empty key clears
// the stored credential. Returns 0 on success, non-zero on error.
func SetAPIKey(apiKey *C.char) int32 {
	if credentials == nil {
		setLastError("Core not initialized")
		return 1
	}
	if err := credentials.SetAPIKey(C.GoString(apiKey)); err != nil {
		setLastError(fmt.Sprintf("Failed to store API key: %v", err))
		return 1
	}
	return 0
}

// =====================================================
// Memory Management Helpers
// =====================================================

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func logLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func main() {
	// Main entry point for shared library
	// Not used when loaded as library
}
