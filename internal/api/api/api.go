package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"

	"lessonhub/cmd/middleware"
	"lessonhub/internal/service"
)

type Routers struct {
	Service service.Service
	Auth    gin.HandlerFunc // bearer token -> profile
	Admin   gin.HandlerFunc // admin role gate, runs after Auth
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/health", r.Service.Health)

	v1 := app.Group("/v1")

	v1.GET("/sections", r.Service.ListSections)
	v1.GET("/sections/:id", r.Service.GetSection)
	v1.POST("/sections", r.Auth, r.Admin, r.Service.CreateSection)
	v1.PUT("/sections/:id", r.Auth, r.Admin, r.Service.UpdateSection)
	v1.DELETE("/sections/:id", r.Auth, r.Admin, r.Service.DeleteSection)

	v1.GET("/applications/me", r.Auth, r.Service.MyApplications)
	v1.GET("/applications", r.Auth, r.Admin, r.Service.SearchApplications)
	v1.POST("/applications", r.Auth, r.Service.Apply)
	v1.PATCH("/applications/:id/cancel", r.Auth, r.Service.CancelApplication)
	v1.DELETE("/applications/:id", r.Service.RejectDeleteApplication)

	v1.GET("/popups", r.Service.ListPopups)
	v1.POST("/popups", r.Auth, r.Admin, r.Service.CreatePopup)
	v1.PATCH("/popups/:id", r.Auth, r.Admin, r.Service.UpdatePopup)
	v1.DELETE("/popups/:id", r.Auth, r.Admin, r.Service.DeletePopup)

	v1.GET("/me", r.Auth, r.Service.GetMe)
	v1.PATCH("/me", r.Auth, r.Service.UpdateMe)

	return app
}
