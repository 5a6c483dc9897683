package routers

import (
	"PromptToVideo-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	r.Static("/static", "./static")
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects", api.ListProjects)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)
		v1.GET("/runs/:run_id", api.GetRunStatus)
		v1.POST("/api-keys", api.CreateAPIKey)
		v1.GET("/api-keys", api.ListAPIKeys)
		v1.DELETE("/api-keys/:key_id", api.DeleteAPIKey)
	}
	// 外部密钥入口（Bearer API key），同步执行流水线
	r.POST("/generate-video-api", api.GenerateVideoAPI)
	r.GET("/runs/:run_id/wss", api.RunProgressWebSocket)
	return r
}
