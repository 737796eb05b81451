package httpapi

import "github.com/gin-gonic/gin"

// Server is a thin wrapper so app wiring can hold a *Server instead of a
// bare *gin.Engine.
type Server struct {
	Engine *gin.Engine
}

func NewServer(cfg RouterConfig) *Server {
	return &Server{Engine: NewRouter(cfg)}
}

func (s *Server) Run(address string) error {
	return s.Engine.Run(address)
}
