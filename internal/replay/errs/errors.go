// Package errs собирает именованные ошибки ядра replay-движка.
//
// Каждая ошибка классифицируется по поведению, а не по месту возникновения:
// ErrInvalidState сигнализирует баг вызывающей стороны (не тот стейт машины),
// ErrInvalidArgs — противоречивые или отсутствующие опции,
// ErrIoError/ErrCorrupt — сбой файловой системы или кодека,
// ErrNotFound — отсутствующий заголовок или сегмент.
package errs

import "errors"

var (
	// ErrInvalidState возвращается, когда операция вызвана в неподходящем
	// состоянии конечного автомата (например, record() вне Recording).
	ErrInvalidState = errors.New("replay: invalid state")

	// ErrInvalidArgs возвращается при противоречивых или отсутствующих опциях.
	ErrInvalidArgs = errors.New("replay: invalid arguments")

	// ErrIoError оборачивает сбой чтения/записи сегмента или заголовка.
	ErrIoError = errors.New("replay: io error")

	// ErrCorrupt возвращается, когда кодек не смог декодировать сегмент.
	// Для целей распространения ошибки трактуется как ErrIoError.
	ErrCorrupt = errors.New("replay: corrupt segment")

	// ErrNotFound возвращается, когда заголовок или ожидаемый сегмент
	// отсутствуют на диске.
	ErrNotFound = errors.New("replay: not found")
)
