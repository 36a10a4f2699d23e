package boot

import (
	"fmt"
	"log"
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/config"
	"github.com/quanwangniuniu/EasySoccerPlay/src/db"
	"github.com/quanwangniuniu/EasySoccerPlay/src/lib"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.Game{},
		&models.Booking{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}
	if err := models.EnsureIndexes(db); err != nil {
		log.Fatalf("error creating indexes: %s", err.Error())
	}

	return db
}

// InitScheduler starts the hourly audit that cross-checks every game's
// booked count against its confirmed bookings and mails the findings.
func InitScheduler(ledger *booking.Ledger) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Printf("Error getting Scheduler: %s\n", err.Error())
		return
	}
	_, err = sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			runAudit(ledger)
		}),
	)
	if err != nil {
		log.Printf("Error registering audit job: %s\n", err.Error())
		return
	}
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Error shutting down Scheduler: %s\n", err.Error())
	}
}

func runAudit(ledger *booking.Ledger) {
	findings, err := ledger.Audit()
	if err != nil {
		log.Printf("[Audit] error: %s\n", err.Error())
		return
	}
	if len(findings) == 0 {
		log.Println("[Audit] all games consistent")
		return
	}
	body := "The following games have a booked count that does not match their confirmed bookings:\n\n"
	for _, f := range findings {
		line := fmt.Sprintf("- %s (%s): booked_count=%d confirmed=%d\n", f.ParkName, f.GameID, f.BookedCount, f.ConfirmedRows)
		log.Printf("[Audit] %s", line)
		body += line
	}
	err = lib.SendMail(&lib.SendMailInput{
		From:     config.AdminEmail(),
		FromName: "EasySoccerPlay",
		To:       []string{config.AdminEmail()},
		Subject:  fmt.Sprintf("Booking audit: %d inconsistent games", len(findings)),
		Body:     body,
	})
	if err != nil {
		log.Printf("[Audit] could not send report: %s\n", err.Error())
	}
}
