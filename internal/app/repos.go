package app

import (
	"gorm.io/gorm"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/repos"
)

type Repos struct {
	Consultation repos.ConsultationRepo
	EditHistory  repos.EditHistoryRepo
	AuditLog     repos.AuditLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Consultation: repos.NewConsultationRepo(db, log),
		EditHistory:  repos.NewEditHistoryRepo(db, log),
		AuditLog:     repos.NewAuditLogRepo(db, log),
	}
}
