package assign

import (
	"context"
	"errors"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/idgen"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	idWorker = idgen.NewWorker()

	CreateWorkerFunc    = CreateWorker
	QueryWorkersFunc    = QueryWorkers
	DetailWorkerFunc    = DetailWorker
	SetWorkerActiveFunc = SetWorkerActive
)

var workerRoles = []string{session.RoleManager, session.RoleSupervisor, session.RoleWorker}

func CreateWorker(c *WorkerCreation, s *session.Session) (*domain.Worker, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	if !domain.IsOneOf(c.Role, workerRoles) {
		return nil, &bizerror.ErrInvalidEnum{Field: "role", Value: c.Role, Accepted: workerRoles}
	}
	skills := domain.StringList(c.Skills)
	if skills == nil {
		skills = domain.StringList{}
	}
	worker := &domain.Worker{
		ID:          idgen.NextID(idWorker),
		Name:        c.Name,
		Role:        c.Role,
		Skills:      skills,
		IsActive:    true,
		AccessToken: c.AccessToken,
		CreateTime:  time.Now().Round(time.Microsecond),
	}
	if err := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Create(worker).Error; err != nil {
		return nil, err
	}
	return worker, nil
}

func QueryWorkers(query *WorkerQuery, s *session.Session) ([]domain.Worker, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	q := db.Model(&domain.Worker{})
	if query.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	workers := []domain.Worker{}
	if err := q.Order("create_time ASC, id ASC").Find(&workers).Error; err != nil {
		return nil, err
	}
	return workers, nil
}

func DetailWorker(id types.ID, s *session.Session) (*domain.Worker, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	return findWorker(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), id)
}

func SetWorkerActive(id types.ID, active bool, s *session.Session) error {
	if !s.IsPrivileged() {
		return bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if _, err := findWorker(db, id); err != nil {
		return err
	}
	return db.Model(&domain.Worker{}).Where("id = ?", id).Update("is_active", active).Error
}

// ResolveWorkerSession serves as the identity collaborator: it maps an access token to the worker's session.
func ResolveWorkerSession(token string) (*session.Session, error) {
	if token == "" {
		return nil, bizerror.ErrUnauthenticated
	}
	worker := domain.Worker{}
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	if err := db.Where("access_token = ?", token).First(&worker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrUnauthenticated
		}
		return nil, err
	}
	return &session.Session{
		Token:    token,
		Identity: session.Identity{ID: worker.ID, Name: worker.Name, Role: worker.Role, Active: worker.IsActive},
	}, nil
}

func findWorker(db *gorm.DB, id types.ID) (*domain.Worker, error) {
	worker := domain.Worker{}
	if err := db.Where("id = ?", id).First(&worker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrNotFound{Resource: "worker", ID: id}
		}
		return nil, err
	}
	return &worker, nil
}
