package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки инференса и модели
	ErrModelLoad           = fmt.Errorf("model load failed")
	ErrEmbeddingGeneration = fmt.Errorf("embedding generation failed")
	ErrImageDecode         = fmt.Errorf("image decode failed")

	// Ошибки векторов и центроидов
	ErrEmptyVector         = fmt.Errorf("empty vector")
	ErrDimensionMismatch   = fmt.Errorf("vector dimension mismatch")
	ErrCentroidComputation = fmt.Errorf("centroid computation failed")

	// Ошибки конфигурации поиска
	ErrInvalidWeightConfig = fmt.Errorf("invalid weight config")

	// 404 Not Found
	ErrColorMappingNotFound = fmt.Errorf("color mapping not found")
	ErrCategoryNotFound     = fmt.Errorf("category not found")
	ErrWeightConfigNotFound = fmt.Errorf("weight config not found")

	// 400 Bad Request
	ErrEmptyQuery           = fmt.Errorf("empty search query")
	ErrNoImageData          = fmt.Errorf("no image data provided")
	ErrClientRequired       = fmt.Errorf("client id is required")
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapSentinel привязывает причину к sentinel-ошибке таксономии,
// сохраняя обе цепочки для проверки через errors.Is.
func WrapSentinel(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
