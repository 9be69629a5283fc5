package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/deeplink"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

// ResolveDeepLink returns a handler that maps ?url= onto an in-app destination.
func ResolveDeepLink(resolver *deeplink.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		link, err := resolver.Parse(c.Query("url"))
		if err != nil {
			return utils.SendClassifiedError(c, fiber.StatusUnprocessableEntity, string(apperror.KindValidation), false, err.Error(), nil)
		}
		return utils.SendSuccess(c, "deep link resolved", dto.DeepLinkResponse{
			Kind:   link.Kind,
			PostID: link.PostID,
			Params: link.Params,
		})
	}
}
