package services

import (
	"errors"

	"github.com/nuevpro/ventas/internal/utils"
)

// repoErr converts repository sentinels into the AppError contract.
func repoErr(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, utils.ErrNotFound):
		return utils.E(utils.CodeNotFound, op, what+" not found", err)
	case errors.Is(err, utils.ErrSessionEnded):
		return utils.E(utils.CodeConflict, op, "session already ended", err)
	case errors.Is(err, utils.ErrAlreadyExists):
		return utils.E(utils.CodeConflict, op, what+" already exists", err)
	default:
		var ae *utils.AppError
		if errors.As(err, &ae) {
			return err
		}
		return utils.E(utils.CodeInternal, op, "failed to access "+what, err)
	}
}
