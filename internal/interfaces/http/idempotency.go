package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HeaderIdempotencyKey cabecera con la clave de idempotencia del cliente.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

// idempotencyKey devuelve la clave de la cabecera. Es obligatoria en las mutaciones: solo el
// cliente sabe qué reintentos pertenecen a la misma petición lógica. Una clave vacía la
// rechaza el ciclo de vida con 400 en el campo idempotency_key.
func idempotencyKey(c *fiber.Ctx) string {
	k := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
	if len(k) > maxIdempotencyKeyLen {
		k = k[:maxIdempotencyKeyLen]
	}
	return k
}
