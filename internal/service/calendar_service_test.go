package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type calendarRepoStub struct {
	years           map[string]*models.AcademicYear
	activeYear      *models.AcademicYear
	yearNameTaken   bool
	yearRefs        int
	semesters       map[string]*models.Semester
	activeSemester  *models.Semester
	semesterTaken   bool
	activatedYears  []string
	activatedSems   []string
	deletedYears    []string
	deletedSems     []string
	createdYear     *models.AcademicYear
	createdSemester *models.Semester
}

func (r *calendarRepoStub) ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	return nil, 0, nil
}

func (r *calendarRepoStub) FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if y, ok := r.years[id]; ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

func (r *calendarRepoStub) FindActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	if r.activeYear == nil {
		return nil, sql.ErrNoRows
	}
	return r.activeYear, nil
}

func (r *calendarRepoStub) YearExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return r.yearNameTaken, nil
}

func (r *calendarRepoStub) CreateYear(ctx context.Context, year *models.AcademicYear) error {
	year.ID = "year-new"
	r.createdYear = year
	return nil
}

func (r *calendarRepoStub) UpdateYear(ctx context.Context, year *models.AcademicYear) error {
	r.years[year.ID] = year
	return nil
}

func (r *calendarRepoStub) SetActiveYear(ctx context.Context, id string) error {
	r.activatedYears = append(r.activatedYears, id)
	return nil
}

func (r *calendarRepoStub) DeleteYear(ctx context.Context, id string) error {
	r.deletedYears = append(r.deletedYears, id)
	return nil
}

func (r *calendarRepoStub) CountYearReferences(ctx context.Context, id string) (int, error) {
	return r.yearRefs, nil
}

func (r *calendarRepoStub) ListSemesters(ctx context.Context, yearID string) ([]models.SemesterDetail, error) {
	return nil, nil
}

func (r *calendarRepoStub) FindSemesterByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := r.semesters[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (r *calendarRepoStub) FindActiveSemester(ctx context.Context) (*models.Semester, error) {
	if r.activeSemester == nil {
		return nil, sql.ErrNoRows
	}
	return r.activeSemester, nil
}

func (r *calendarRepoStub) SemesterExists(ctx context.Context, yearID string, number int, excludeID string) (bool, error) {
	return r.semesterTaken, nil
}

func (r *calendarRepoStub) CreateSemester(ctx context.Context, semester *models.Semester) error {
	semester.ID = "sem-new"
	r.createdSemester = semester
	return nil
}

func (r *calendarRepoStub) UpdateSemester(ctx context.Context, semester *models.Semester) error {
	r.semesters[semester.ID] = semester
	return nil
}

func (r *calendarRepoStub) SetActiveSemester(ctx context.Context, id string) error {
	r.activatedSems = append(r.activatedSems, id)
	return nil
}

func (r *calendarRepoStub) DeleteSemester(ctx context.Context, id string) error {
	r.deletedSems = append(r.deletedSems, id)
	return nil
}

type calendarCacheStub struct {
	invalidations int
}

func (c *calendarCacheStub) InvalidateDashboards(ctx context.Context) error {
	c.invalidations++
	return nil
}

func calendarFixtures() (*calendarRepoStub, *calendarCacheStub) {
	repo := &calendarRepoStub{
		years: map[string]*models.AcademicYear{
			"y1": {
				ID:        "y1",
				Name:      "2026/2027",
				StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC),
				IsActive:  true,
			},
			"y2": {
				ID:        "y2",
				Name:      "2027/2028",
				StartDate: time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2028, 6, 30, 0, 0, 0, 0, time.UTC),
			},
		},
		semesters: map[string]*models.Semester{
			"sem-1": {
				ID:             "sem-1",
				AcademicYearID: "y1",
				Number:         1,
				StartDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
				EndDate:        time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC),
			},
			"sem-3": {
				ID:             "sem-3",
				AcademicYearID: "y2",
				Number:         1,
				StartDate:      time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
				EndDate:        time.Date(2027, 12, 17, 0, 0, 0, 0, time.UTC),
			},
		},
	}
	return repo, &calendarCacheStub{}
}

func TestCalendarServiceCreateYearNeverActive(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	year, err := svc.CreateYear(context.Background(), CreateAcademicYearRequest{
		Name:      "2028/2029",
		StartDate: time.Date(2028, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2029, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.False(t, year.IsActive)
	assert.Equal(t, "year-new", year.ID)
}

func TestCalendarServiceCreateYearRejectsInvertedDates(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	_, err := svc.CreateYear(context.Background(), CreateAcademicYearRequest{
		Name:      "2028/2029",
		StartDate: time.Date(2029, 6, 30, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2028, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCalendarServiceCreateYearDuplicateName(t *testing.T) {
	repo, cache := calendarFixtures()
	repo.yearNameTaken = true
	svc := NewCalendarService(repo, cache, nil, nil)

	_, err := svc.CreateYear(context.Background(), CreateAcademicYearRequest{
		Name:      "2026/2027",
		StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCalendarServiceActivateYearInvalidatesDashboards(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	year, err := svc.ActivateYear(context.Background(), "y2")
	require.NoError(t, err)
	assert.True(t, year.IsActive)
	assert.Equal(t, []string{"y2"}, repo.activatedYears)
	assert.Equal(t, 1, cache.invalidations)
}

func TestCalendarServiceDeleteActiveYearBlocked(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	err := svc.DeleteYear(context.Background(), "y1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, repo.deletedYears)
}

func TestCalendarServiceDeleteReferencedYearBlocked(t *testing.T) {
	repo, cache := calendarFixtures()
	repo.yearRefs = 12
	svc := NewCalendarService(repo, cache, nil, nil)

	err := svc.DeleteYear(context.Background(), "y2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestCalendarServiceDeleteYear(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	err := svc.DeleteYear(context.Background(), "y2")
	require.NoError(t, err)
	assert.Equal(t, []string{"y2"}, repo.deletedYears)
}

func TestCalendarServiceCreateSemesterDuplicateNumber(t *testing.T) {
	repo, cache := calendarFixtures()
	repo.semesterTaken = true
	svc := NewCalendarService(repo, cache, nil, nil)

	_, err := svc.CreateSemester(context.Background(), CreateSemesterRequest{
		AcademicYearID: "y1",
		Number:         1,
		StartDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCalendarServiceActivateSemester(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	semester, err := svc.ActivateSemester(context.Background(), "sem-1")
	require.NoError(t, err)
	assert.True(t, semester.IsActive)
	assert.Equal(t, []string{"sem-1"}, repo.activatedSems)
	assert.Equal(t, 1, cache.invalidations)
}

func TestCalendarServiceActivateSemesterUnderInactiveYear(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)

	_, err := svc.ActivateSemester(context.Background(), "sem-3")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.activatedSems)
}

func TestCalendarServiceDeleteActiveSemesterBlocked(t *testing.T) {
	repo, cache := calendarFixtures()
	repo.semesters["sem-1"].IsActive = true
	svc := NewCalendarService(repo, cache, nil, nil)

	err := svc.DeleteSemester(context.Background(), "sem-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestCalendarServiceCurrent(t *testing.T) {
	repo, cache := calendarFixtures()
	repo.activeYear = repo.years["y1"]
	repo.activeSemester = repo.semesters["sem-1"]
	svc := NewCalendarService(repo, cache, nil, nil)

	period, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, period.Degraded)
	require.NotNil(t, period.Year)
	assert.Equal(t, "2026/2027", period.Year.Name)
	require.NotNil(t, period.Semester)
	assert.Equal(t, 1, period.Semester.Number)
}

func TestCalendarServiceCurrentDegradesWithoutActiveYear(t *testing.T) {
	repo, cache := calendarFixtures()
	svc := NewCalendarService(repo, cache, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }

	period, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, period.Degraded)
	assert.Equal(t, "2026/2027", period.FallbackYear)
	assert.Nil(t, period.Year)
	assert.Nil(t, period.Semester)
}

func TestCalendarServiceCurrentWithoutActiveSemester(t *testing.T) {
	repo, cache := calendarFixtures()
	repo.activeYear = repo.years["y1"]
	svc := NewCalendarService(repo, cache, nil, nil)

	period, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, period.Degraded)
	require.NotNil(t, period.Year)
	assert.Nil(t, period.Semester)
}
