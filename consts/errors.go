package consts

import "errors"

var (
	ErrFolderNotFound  = errors.New("folder not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrRuleNotFound    = errors.New("rule not found")

	ErrDBCommitTransactionFailed = errors.New("commit failed")
	ErrDBBeginTransactionFailed  = errors.New("start transaction failed")
	ErrDBInsertFailed            = errors.New("insert failed")
	ErrDBUpdateFailed            = errors.New("update failed")
)
