package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemolink/bloodbank/internal/db"
	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/slot"
)

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

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	dir := directory.NewPgDirectory(pool)

	facilityIDs, err := seedFacilities(context.Background(), dir, 20)
	if err != nil {
		log.Fatalf("seed facilities: %v", err)
	}
	if err := seedDonors(context.Background(), dir, 500); err != nil {
		log.Fatalf("seed donors: %v", err)
	}
	if err := seedSlots(context.Background(), pool, facilityIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedFacilities(ctx context.Context, dir *directory.PgDirectory, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d facilities", count)

	kinds := []directory.FacilityKind{
		directory.FacilityBloodBank,
		directory.FacilityHospital,
		directory.FacilityCamp,
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		addr := gofakeit.Address().Address
		f, err := dir.CreateFacility(ctx, gofakeit.Company(), kinds[i%len(kinds)], &addr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func seedDonors(ctx context.Context, dir *directory.PgDirectory, count int) error {
	log.Printf("seeding %d donors", count)

	groups := []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		group := groups[gofakeit.Number(0, len(groups)-1)]
		if _, err := dir.CreateDonor(ctx, gofakeit.Name(), &email, &group); err != nil {
			return err
		}
	}
	return nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, facilityIDs []uuid.UUID) error {
	log.Printf("seeding slots for %d facilities", len(facilityIDs))

	repo := slot.NewPgRepository(pool)
	for _, facilityID := range facilityIDs {
		slots, err := slot.BuildSlots(slot.GenerateParams{
			FacilityID: facilityID,
			StartTime:  "09:00",
			EndTime:    "17:00",
			Duration:   30,
			Rest:       10,
			Capacity:   gofakeit.Number(1, 4),
		})
		if err != nil {
			return err
		}
		if _, err := repo.CreateSlots(ctx, slots); err != nil {
			return err
		}
	}
	return nil
}
