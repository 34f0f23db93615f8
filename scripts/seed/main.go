package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-api/pkg/config"
	"github.com/noah-isme/campus-api/pkg/database"
)

func main() {
	var (
		adminEmail    string
		adminPassword string
		adminName     string
	)

	flag.StringVar(&adminEmail, "admin-email", "admin@campus.local", "Email for the seeded admin account")
	flag.StringVar(&adminPassword, "admin-password", "ChangeMe123!", "Password for the seeded admin account")
	flag.StringVar(&adminName, "admin-name", "System Administrator", "Full name for the seeded admin account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	adminID, err := ensureAdmin(db, adminEmail, adminPassword, adminName)
	if err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}
	fmt.Printf("admin user: %s (%s)\n", adminEmail, adminID)

	facultyID, err := ensureFaculty(db, "Faculty of Science", "SCI")
	if err != nil {
		log.Fatalf("failed to seed faculty: %v", err)
	}
	deptID, err := ensureDepartment(db, facultyID, "Department of Computer Science", "CS")
	if err != nil {
		log.Fatalf("failed to seed department: %v", err)
	}
	courseID, err := ensureCourse(db, deptID, "BSc Computer Science", "BSC-CS", "BACHELOR", 4)
	if err != nil {
		log.Fatalf("failed to seed course: %v", err)
	}
	fmt.Printf("course: BSC-CS (%s)\n", courseID)

	units := []struct {
		name     string
		code     string
		credits  int
		year     int
		semester int
	}{
		{"Introduction to Programming", "CS101", 4, 1, 1},
		{"Data Structures", "CS102", 4, 1, 2},
		{"Algorithms", "CS201", 4, 2, 1},
	}
	for _, u := range units {
		unitID, err := ensureUnit(db, courseID, u.name, u.code, u.credits, u.year, u.semester)
		if err != nil {
			log.Fatalf("failed to seed unit %s: %v", u.code, err)
		}
		fmt.Printf("unit: %s (%s)\n", u.code, unitID)
	}

	yearID, err := ensureAcademicYear(db)
	if err != nil {
		log.Fatalf("failed to seed academic year: %v", err)
	}
	if err := ensureSemesters(db, yearID); err != nil {
		log.Fatalf("failed to seed semesters: %v", err)
	}
	fmt.Printf("academic year: %s\n", yearID)

	fmt.Println("seed complete")
}

func ensureAdmin(db *sqlx.DB, email, password, name string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	_, err = db.Exec(
		`INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'ADMIN', true, $5, $5)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), email, string(hash), name, now,
	)
	if err != nil {
		return "", err
	}
	var id string
	if err := db.Get(&id, `SELECT id FROM users WHERE email = $1`, email); err != nil {
		return "", err
	}
	return id, nil
}

func ensureFaculty(db *sqlx.DB, name, code string) (string, error) {
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO faculties (id, name, code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), name, code, now,
	)
	if err != nil {
		return "", err
	}
	var id string
	if err := db.Get(&id, `SELECT id FROM faculties WHERE code = $1`, code); err != nil {
		return "", err
	}
	return id, nil
}

func ensureDepartment(db *sqlx.DB, facultyID, name, code string) (string, error) {
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO departments (id, faculty_id, name, code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), facultyID, name, code, now,
	)
	if err != nil {
		return "", err
	}
	var id string
	if err := db.Get(&id, `SELECT id FROM departments WHERE code = $1`, code); err != nil {
		return "", err
	}
	return id, nil
}

func ensureCourse(db *sqlx.DB, deptID, name, code, level string, years int) (string, error) {
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO courses (id, department_id, name, code, level, duration_years, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), deptID, name, code, level, years, now,
	)
	if err != nil {
		return "", err
	}
	var id string
	if err := db.Get(&id, `SELECT id FROM courses WHERE code = $1`, code); err != nil {
		return "", err
	}
	return id, nil
}

func ensureUnit(db *sqlx.DB, courseID, name, code string, credits, year, semester int) (string, error) {
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO units (id, course_id, name, code, credit_hours, year_offered, semester_offered, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $8)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), courseID, name, code, credits, year, semester, now,
	)
	if err != nil {
		return "", err
	}
	var id string
	if err := db.Get(&id, `SELECT id FROM units WHERE code = $1`, code); err != nil {
		return "", err
	}
	return id, nil
}

func ensureAcademicYear(db *sqlx.DB) (string, error) {
	year := time.Now().Year()
	name := fmt.Sprintf("%d/%d", year, year+1)
	start := time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.June, 30, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO academic_years (id, name, start_date, end_date, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, true, $5, $5)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), name, start, end, now,
	)
	if err != nil {
		return "", err
	}
	var id string
	if err := db.Get(&id, `SELECT id FROM academic_years WHERE name = $1`, name); err != nil {
		return "", err
	}
	return id, nil
}

func ensureSemesters(db *sqlx.DB, yearID string) error {
	year := time.Now().Year()
	now := time.Now().UTC()
	semesters := []struct {
		number int
		start  time.Time
		end    time.Time
		active bool
	}{
		{1, time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC), time.Date(year, time.December, 20, 0, 0, 0, 0, time.UTC), true},
		{2, time.Date(year+1, time.January, 15, 0, 0, 0, 0, time.UTC), time.Date(year+1, time.June, 30, 0, 0, 0, 0, time.UTC), false},
	}
	for _, s := range semesters {
		_, err := db.Exec(
			`INSERT INTO semesters (id, academic_year_id, number, start_date, end_date, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			 ON CONFLICT DO NOTHING`,
			uuid.NewString(), yearID, s.number, s.start, s.end, s.active, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
