package errors

import "net/http"

// 服务代码划分：
//   - 00: 基础错误（所有服务共享）
//   - 20: RAG 服务（索引与检索管线）
const (
	// ServiceCommon is for shared base errors.
	ServiceCommon = 0

	// ServiceRAG is for the RAG indexing and retrieval service.
	ServiceRAG = 20
)

// 基础错误 (服务 00)。
var (
	ErrSuccess = Register(New(MakeCode(ServiceCommon, CategorySuccess, 0), http.StatusOK, "OK", "OK"))

	ErrInternal     = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1), http.StatusInternalServerError, "Internal server error", "Erreur interne du serveur"))
	ErrInvalidParam = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1), http.StatusBadRequest, "Invalid parameter", "Paramètre invalide"))
	ErrNotFound     = Register(New(MakeCode(ServiceCommon, CategoryNotFound, 1), http.StatusNotFound, "Resource not found", "Ressource introuvable"))
	ErrDatabase     = Register(New(MakeCode(ServiceCommon, CategoryDatabase, 1), http.StatusInternalServerError, "Database error", "Erreur de base de données"))
)

// RAG 服务错误 (服务 20)。
//
// 该错误集覆盖索引/检索管线的完整失败分类：调用方参数错误、
// 分块配置错误、嵌入后端错误、存储错误以及跨存储一致性中断。
var (
	// 请求参数错误 (类别 01)
	ErrInvalidInput = Register(New(MakeCode(ServiceRAG, CategoryRequest, 1), http.StatusBadRequest, "Invalid input", "Entrée invalide"))

	// 资源错误 (类别 04)
	ErrDocumentNotFound = Register(New(MakeCode(ServiceRAG, CategoryNotFound, 1), http.StatusNotFound, "Document not found", "Document introuvable"))

	// 嵌入后端错误 (类别 07/10)
	ErrDimensionMismatch = Register(New(MakeCode(ServiceRAG, CategoryInternal, 1), http.StatusInternalServerError, "Embedding dimension mismatch", "Dimension d'embedding incompatible"))
	ErrModelUnavailable  = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 1), http.StatusServiceUnavailable, "Embedding backend unavailable", "Backend d'embedding indisponible"))

	// 跨存储一致性错误 (类别 07)
	ErrPartialIndex = Register(New(MakeCode(ServiceRAG, CategoryInternal, 2), http.StatusInternalServerError, "Partial index failure: vectors missing for committed chunks", "Indexation partielle: vecteurs manquants"))
	ErrDeleteFailed = Register(New(MakeCode(ServiceRAG, CategoryInternal, 3), http.StatusInternalServerError, "Document deletion failed", "Échec de la suppression du document"))
	ErrConsistency  = Register(New(MakeCode(ServiceRAG, CategoryInternal, 4), http.StatusInternalServerError, "Cross-store consistency violation", "Violation de cohérence entre les stores"))

	// 存储错误 (类别 08)
	ErrStoreUnavailable = Register(New(MakeCode(ServiceRAG, CategoryDatabase, 1), http.StatusServiceUnavailable, "Store unavailable", "Store indisponible"))

	// 生成后端错误 (类别 10)
	ErrGenerationFailed = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 2), http.StatusBadGateway, "Answer generation failed", "Échec de la génération de réponse"))

	// 超时错误 (类别 11)
	ErrTimeout = Register(New(MakeCode(ServiceRAG, CategoryTimeout, 1), http.StatusGatewayTimeout, "Operation timeout", "Délai d'attente dépassé"))

	// 配置错误 (类别 12)
	ErrInvalidConfig = Register(New(MakeCode(ServiceRAG, CategoryConfig, 1), http.StatusInternalServerError, "Invalid chunking configuration", "Configuration de découpage invalide"))
)
