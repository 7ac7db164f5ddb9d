package server

import "github.com/gin-gonic/gin"

// NewRouter builds the gin engine with all API routes registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.GET("/profile", h.authRequired, h.profile)
	authGroup.PUT("/profile", h.authRequired, h.updateProfile)
	authGroup.POST("/cards", h.authRequired, h.addCard)

	wallet := api.Group("/wallet", h.authRequired)
	wallet.POST("/transfer", h.transfer)
	wallet.GET("/transactions", h.transactions)

	api.GET("/accounts", h.authRequired, h.listAccounts)

	//for debugging purpose
	for _, routeInfo := range router.Routes() {
		logger.Debug().
			Str("path", routeInfo.Path).
			Str("handler", routeInfo.Handler).
			Str("method", routeInfo.Method).
			Msg("registered routes")
	}

	return router
}
