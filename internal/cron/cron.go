package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailclean/interfaces"
	cron_config "github.com/customeros/mailclean/internal/cron/config"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
)

const (
	// GroupMailbox serializes jobs that call the mail provider
	GroupMailbox = "mailbox"
	// GroupMaintenance serializes local bookkeeping jobs
	GroupMaintenance = "maintenance"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMailbox:     new(sync.Mutex),
		GroupMaintenance: new(sync.Mutex),
	},
}

// Jobs holds the services the scheduled jobs drive. Nil members disable their
// job.
type Jobs struct {
	Scanner  interfaces.ScannerService
	Undo     interfaces.UndoService
	Plans    interfaces.PlanRepository
	Exporter interfaces.AuditExporter
}

type CronManager struct {
	cfg      cron_config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	localDev bool
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	jobs     Jobs
	now      func() time.Time
}

func NewCronManager(cfg cron_config.Config, log logger.Logger, k8s kubernetes.Interface, localDev bool, jobs Jobs) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		k8s:      k8s,
		localDev: localDev,
		stopCh:   make(chan struct{}),
		jobIDs:   make(map[string]cronv3.EntryID),
		jobs:     jobs,
		now:      time.Now,
	}
}

// LoadConfig reads the job schedules from the environment.
func LoadConfig() (cron_config.Config, error) {
	var cronConfig cron_config.Config
	err := env.Parse(&cronConfig)
	return cronConfig, err
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || cm.localDev {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "mailclean-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Failed to start crons: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		le.Run(context.Background())
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

// registerJobs adds all configured cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}

	jobs := []struct {
		name     string
		schedule string
		group    string
		enabled  bool
		run      func()
	}{
		{"heartbeat", cm.cfg.CronScheduleHeartbeat, "", true, func() {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		}},
		{"rescan", cm.cfg.CronScheduleRescan, GroupMailbox, cm.jobs.Scanner != nil, cm.rescan},
		{"undo_compaction", cm.cfg.CronScheduleUndoCompaction, GroupMaintenance, cm.jobs.Undo != nil, cm.compactUndo},
		{"plan_cleanup", cm.cfg.CronSchedulePlanCleanup, GroupMaintenance, cm.jobs.Plans != nil, cm.cleanupPlans},
		{"audit_export", cm.cfg.CronScheduleAuditExport, GroupMaintenance, cm.jobs.Exporter != nil, cm.exportAudit},
	}

	for _, job := range jobs {
		if job.schedule == "" || !job.enabled {
			continue
		}
		job := job
		id, err := c.AddFunc(job.schedule, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			if job.group != "" {
				jobLocks.locks[job.group].Lock()
				defer jobLocks.locks[job.group].Unlock()
			}
			job.run()
		})
		if err != nil {
			cm.log.Errorf("Could not add %s cron job: %v", job.name, err)
			return err
		}
		cm.jobIDs[job.name] = id
		cm.log.Infof("Registered %s job with schedule: %s", job.name, job.schedule)
	}
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) jobContext(operation string) (context.Context, func()) {
	ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{AppSource: utils.AppSourceCron})
	span, ctx := tracing.StartTracerSpan(ctx, operation)
	tracing.TagComponentCronJob(span)
	return ctx, span.Finish
}

func (cm *CronManager) rescan() {
	ctx, finish := cm.jobContext("CronManager.rescan")
	defer finish()

	run, err := cm.jobs.Scanner.Scan(ctx)
	if err != nil {
		cm.log.Errorf("Scheduled rescan failed: %v", err)
		return
	}
	cm.log.Infof("Scheduled rescan stored snapshot version %d with %d senders", run.Version, run.SendersCount)
}

func (cm *CronManager) compactUndo() {
	ctx, finish := cm.jobContext("CronManager.compactUndo")
	defer finish()

	n, err := cm.jobs.Undo.Compact(ctx)
	if err != nil {
		cm.log.Errorf("Undo compaction failed: %v", err)
		return
	}
	if n > 0 {
		cm.log.Infof("Removed %d inactive undo records", n)
	}
}

func (cm *CronManager) cleanupPlans() {
	ctx, finish := cm.jobContext("CronManager.cleanupPlans")
	defer finish()

	n, err := cm.jobs.Plans.DeleteExpired(ctx, cm.now())
	if err != nil {
		cm.log.Errorf("Plan cleanup failed: %v", err)
		return
	}
	if n > 0 {
		cm.log.Infof("Removed %d expired plans", n)
	}
}

// exportAudit writes the UTC day before now.
func (cm *CronManager) exportAudit() {
	ctx, finish := cm.jobContext("CronManager.exportAudit")
	defer finish()

	day := cm.now().UTC().AddDate(0, 0, -1)
	key, count, err := cm.jobs.Exporter.ExportDay(ctx, day)
	if err != nil {
		cm.log.Errorf("Audit export for %s failed: %v", day.Format("2006-01-02"), err)
		return
	}
	cm.log.Infof("Audit export wrote %d entries to %s", count, key)
}
