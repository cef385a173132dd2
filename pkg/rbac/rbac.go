package rbac

import "fmt"

// 权限常量
const (
	PermissionCreateProject = "project:create"
	PermissionJoinProject   = "project:join"
	PermissionReadProject   = "project:read"
	PermissionManageProject = "project:manage" // 修改、删除、重置邀请码、完成项目

	PermissionManageScope    = "scope:manage" // 编辑需求、提交审核
	PermissionReviewScope    = "scope:review" // 审核需求
	PermissionDraftContract  = "contract:draft"
	PermissionReviewContract = "contract:review"
	PermissionUpdateTask     = "task:update"
	PermissionUploadPayment  = "payment:upload"
	PermissionVerifyPayment  = "payment:verify"

	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量，与 users.role 列一致
const (
	RoleFreelancer = "FREELANCER"
	RoleClient     = "CLIENT"
	RoleAdmin      = "ADMIN"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleFreelancer: {
		PermissionCreateProject,
		PermissionReadProject,
		PermissionManageProject,
		PermissionManageScope,
		PermissionDraftContract,
		PermissionUpdateTask,
		PermissionVerifyPayment,
	},
	RoleClient: {
		PermissionJoinProject,
		PermissionReadProject,
		PermissionReviewScope,
		PermissionReviewContract,
		PermissionUploadPayment,
	},
	RoleAdmin: {
		PermissionReadProject,
		PermissionReplayOutbox,
	},
}

// ValidRole 判断是否为已知角色
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// SelfServiceRole 判断是否允许通过注册接口获得该角色
func SelfServiceRole(role string) bool {
	return role == RoleFreelancer || role == RoleClient
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 与 HasPermission 相同，但返回 error 便于 handler 直接处理
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{Role: role, Permission: permission}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}
