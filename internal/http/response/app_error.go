package response

// AppError 统一错误包装
type AppError struct {
	Code     int
	Message  string
	Category string
	Err      error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCategory 附加错误分类（validation / not_found / consistency 等）
func (e *AppError) WithCategory(category string) *AppError {
	e.Category = category
	return e
}
