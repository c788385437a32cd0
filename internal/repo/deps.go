package repo

import (
	"errors"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"rotor-api/pkg/tradingday"
)

// Dependencies bundles the shared infrastructure repository implementations
// need.
type Dependencies struct {
	DBConn   sqlx.SqlConn
	Calendar *tradingday.Calendar
	Clock    tradingday.Clock
}

// Set exposes strongly typed repositories to application logic.
type Set struct {
	Executions ExecutionsRepo
	Rotations  RotationsRepo
}

// New constructs the repository set, validating required dependencies.
func New(deps Dependencies) (*Set, error) {
	if deps.DBConn == nil {
		return nil, errors.New("repo: missing DBConn dependency")
	}
	if deps.Calendar == nil {
		return nil, errors.New("repo: missing Calendar dependency")
	}
	if deps.Clock == nil {
		deps.Clock = tradingday.SystemClock{}
	}

	return &Set{
		Executions: newExecutionsRepo(deps),
		Rotations:  newRotationsRepo(deps),
	}, nil
}
