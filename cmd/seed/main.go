package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/medbook/scheduling-core/internal/appointment"
	"github.com/medbook/scheduling-core/internal/db"
	"github.com/medbook/scheduling-core/internal/schedule"
)

// Seeds availability templates and a sprinkling of exceptions so the
// simulator has realistic calendars to hammer.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := appointment.NewPgRepository(pool)

	professionals, err := seedTemplates(context.Background(), repo, 100)
	if err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	if err := seedExceptions(context.Background(), repo, professionals); err != nil {
		log.Fatalf("seed exceptions: %v", err)
	}

	log.Println("seed complete")
}

var timezones = []string{
	"UTC",
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Berlin",
	"Asia/Kolkata",
}

var slotDurations = []time.Duration{
	15 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	45 * time.Minute,
	60 * time.Minute,
}

func seedTemplates(ctx context.Context, repo *appointment.PgRepository, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d professional templates", count)

	professionals := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		professionalID := uuid.New()

		weekdays := schedule.NewWeekmask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
		if gofakeit.Bool() {
			weekdays |= schedule.NewWeekmask(time.Saturday)
		}

		dayStart := gofakeit.Number(7, 10) * 60
		dayEnd := gofakeit.Number(16, 19) * 60

		tpl := schedule.Template{
			ProfessionalID: professionalID,
			Weekdays:       weekdays,
			DayStartMin:    dayStart,
			DayEndMin:      dayEnd,
			SlotDuration:   slotDurations[gofakeit.Number(0, len(slotDurations)-1)],
			Gap:            time.Duration(gofakeit.Number(0, 2)) * 5 * time.Minute,
			BufferBefore:   time.Duration(gofakeit.Number(0, 1)) * 5 * time.Minute,
			BufferAfter:    time.Duration(gofakeit.Number(0, 1)) * 5 * time.Minute,
			Timezone:       timezones[gofakeit.Number(0, len(timezones)-1)],
			EffectiveFrom:  time.Now().UTC().Truncate(24 * time.Hour),
		}
		if err := tpl.Validate(); err != nil {
			return nil, err
		}
		if err := repo.SaveTemplate(ctx, &tpl); err != nil {
			return nil, err
		}
		professionals = append(professionals, professionalID)
	}

	log.Println("templates seeded")
	return professionals, nil
}

func seedExceptions(ctx context.Context, repo *appointment.PgRepository, professionals []uuid.UUID) error {
	log.Printf("seeding exceptions for %d professionals", len(professionals))

	reasons := []string{"vacation", "conference", "training", "personal"}
	created := 0

	for _, professionalID := range professionals {
		// Roughly a third of calendars carry an upcoming block.
		if gofakeit.Number(0, 2) != 0 {
			continue
		}

		daysOut := gofakeit.Number(3, 30)
		start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, daysOut)
		end := start.AddDate(0, 0, gofakeit.Number(1, 5))

		ex := schedule.Exception{
			ProfessionalID: professionalID,
			Kind:           schedule.ExceptionBlock,
			Start:          start,
			End:            end,
			Reason:         reasons[gofakeit.Number(0, len(reasons)-1)],
		}
		if err := ex.Validate(); err != nil {
			return err
		}
		if err := repo.CreateException(ctx, &ex); err != nil {
			return err
		}
		created++
	}

	log.Printf("exceptions seeded: %d", created)
	return nil
}
